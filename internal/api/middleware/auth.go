package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cipherdial/cipherdial/internal/models"
	"github.com/cipherdial/cipherdial/internal/store"
	"github.com/cipherdial/cipherdial/internal/token"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// AuthMiddleware resolves bearer tokens to identities.
type AuthMiddleware struct {
	tokens     *token.Service
	identities store.IdentityStore
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *token.Service, identities store.IdentityStore) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, identities: identities}
}

// Resolve extracts and verifies an "Authorization: Bearer <token>" header.
// A request without the header passes through anonymous; the route group
// decides whether anonymous access is allowed (see RequireIdentity). A header
// that is present but malformed, expired, forged, or bound to a deleted
// identity is rejected here with 401.
func (m *AuthMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			jsonError(w, http.StatusUnauthorized, "Invalid Authorization header format. Expected: Bearer <token>")
			return
		}

		identityID, err := m.tokens.Verify(parts[1])
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				jsonError(w, http.StatusUnauthorized, "Token has expired")
				return
			}
			jsonError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ident, err := m.identities.GetIdentityByID(r.Context(), identityID)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "database error")
			return
		}
		if ident == nil {
			// Valid signature but the account is gone (deleted out-of-band).
			jsonError(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects requests that reached the handler anonymous.
// It must run after Resolve.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) == nil {
			jsonError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext retrieves the authenticated identity from the request
// context, or nil for anonymous requests.
func IdentityFromContext(ctx context.Context) *models.Identity {
	ident, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return ident
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
