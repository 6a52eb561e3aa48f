package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cipherdial/cipherdial/internal/token"
)

func main() {
	secret := flag.String("secret", "", "Token signing secret (same value as TOKEN_SECRET)")
	userID := flag.Int64("user", 0, "Identity ID to mint a token for")
	ttl := flag.Duration("ttl", token.DefaultTTL, "Token lifetime, e.g. 24h")
	flag.Parse()

	if *secret == "" || *userID <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: mktoken -secret <token-secret> -user <identity-id> [-ttl <duration>]")
		os.Exit(1)
	}

	svc := token.NewService([]byte(*secret), *ttl)
	tok, err := svc.Issue(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", tok)
	fmt.Printf("Expires: %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
}
