package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func main() {
	secret := make([]byte, 48)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}

	fmt.Printf("TOKEN_SECRET=%s\n", base64.StdEncoding.EncodeToString(secret))
}
