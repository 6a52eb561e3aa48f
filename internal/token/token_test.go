package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := NewService([]byte("test-secret"), time.Hour)

	tok, err := svc.Issue(42)
	if err != nil {
		t.Fatal(err)
	}

	id, err := svc.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 {
		t.Fatalf("expected identity 42, got %d", id)
	}
}

func TestExpiredToken(t *testing.T) {
	svc := NewService([]byte("test-secret"), -time.Minute)

	tok, err := svc.Issue(7)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Verify(tok)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTamperedSignature(t *testing.T) {
	svc := NewService([]byte("test-secret"), time.Hour)

	tok, err := svc.Issue(7)
	if err != nil {
		t.Fatal(err)
	}

	// Flip a character in the signature segment.
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 token segments, got %d", len(parts))
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = svc.Verify(tampered)
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestWrongSecret(t *testing.T) {
	issuer := NewService([]byte("secret-a"), time.Hour)
	verifier := NewService([]byte("secret-b"), time.Hour)

	tok, err := issuer.Issue(7)
	if err != nil {
		t.Fatal(err)
	}

	_, err = verifier.Verify(tok)
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestGarbageToken(t *testing.T) {
	svc := NewService([]byte("test-secret"), time.Hour)

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.Verify(tok); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("Verify(%q): expected ErrTokenMalformed, got %v", tok, err)
		}
	}
}

func TestZeroTTLFallsBackToDefault(t *testing.T) {
	svc := NewService([]byte("test-secret"), 0)
	if svc.ttl != DefaultTTL {
		t.Fatalf("expected default TTL %v, got %v", DefaultTTL, svc.ttl)
	}
}
