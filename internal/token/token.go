// Package token issues and verifies the signed bearer credentials used by the
// API. Tokens are stateless: there is no revocation list, expiry is the only
// invalidation mechanism, and rotating the signing secret invalidates every
// outstanding token.
package token

import (
	"errors"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// DefaultTTL is the token validity window used when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenMalformed = errors.New("token is malformed or has an invalid signature")
)

// Claims is the token payload: the identity id plus standard iat/exp fields.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.StandardClaims
}

// Service signs and verifies tokens with a single process-wide HMAC secret.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates a token service. A zero ttl falls back to DefaultTTL.
func NewService(secret []byte, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Service{secret: secret, ttl: ttl}
}

// Issue produces a signed token for the identity, valid for the service TTL.
func (s *Service) Issue(identityID int64) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: identityID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
			Issuer:    "cipherdial",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the token signature and expiry and returns the embedded
// identity id. Expired tokens fail with ErrTokenExpired; everything else
// (bad signature, wrong algorithm, missing user_id) fails with
// ErrTokenMalformed.
func (s *Service) Verify(tokenStr string) (int64, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenMalformed
	}

	if !token.Valid || claims.UserID <= 0 {
		return 0, ErrTokenMalformed
	}
	return claims.UserID, nil
}
