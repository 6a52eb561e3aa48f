package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cipherdial/cipherdial/internal/models"
	"github.com/cipherdial/cipherdial/internal/store"
	"github.com/cipherdial/cipherdial/internal/token"
)

// fakeIdentityStore serves a fixed set of identities for middleware tests.
type fakeIdentityStore struct {
	identities map[int64]*models.Identity
}

func (f *fakeIdentityStore) CreateIdentity(ctx context.Context, phone, passwordHash, firstName, lastName string) (*models.Identity, error) {
	return nil, nil
}

func (f *fakeIdentityStore) GetIdentityByID(ctx context.Context, id int64) (*models.Identity, error) {
	return f.identities[id], nil
}

func (f *fakeIdentityStore) GetIdentityByPhone(ctx context.Context, phone string) (*models.Identity, error) {
	return nil, nil
}

func (f *fakeIdentityStore) UpdateIdentityName(ctx context.Context, id int64, upd store.NameUpdate) (*models.Identity, error) {
	return nil, nil
}

func (f *fakeIdentityStore) SearchIdentities(ctx context.Context, phoneFragment string, excludeID int64, limit int) ([]models.Identity, error) {
	return nil, nil
}

func (f *fakeIdentityStore) CountIdentities(ctx context.Context) (int64, error) {
	return 0, nil
}

func newTestAuth(t *testing.T, ttl time.Duration) (*AuthMiddleware, *token.Service) {
	t.Helper()
	tokens := token.NewService([]byte("test-secret"), ttl)
	identities := &fakeIdentityStore{identities: map[int64]*models.Identity{
		42: {ID: 42, Phone: "+15550042"},
	}}
	return NewAuthMiddleware(tokens, identities), tokens
}

func resolveRequest(t *testing.T, auth *AuthMiddleware, header string) (*httptest.ResponseRecorder, *models.Identity) {
	t.Helper()

	var got *models.Identity
	handler := auth.Resolve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/users/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, got
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	return body.Error
}

func TestResolveValidToken(t *testing.T) {
	auth, tokens := newTestAuth(t, time.Hour)

	tok, err := tokens.Issue(42)
	if err != nil {
		t.Fatal(err)
	}

	rec, ident := resolveRequest(t, auth, "Bearer "+tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ident == nil || ident.ID != 42 {
		t.Fatalf("expected identity 42 in context, got %+v", ident)
	}
}

func TestResolveNoHeaderPassesAnonymous(t *testing.T) {
	auth, _ := newTestAuth(t, time.Hour)

	rec, ident := resolveRequest(t, auth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ident != nil {
		t.Fatalf("expected anonymous request, got %+v", ident)
	}
}

func TestResolveMalformedHeader(t *testing.T) {
	auth, tokens := newTestAuth(t, time.Hour)
	tok, _ := tokens.Issue(42)

	for _, header := range []string{
		tok,
		"Basic " + tok,
		"Bearer",
		"Bearer " + tok + " extra",
	} {
		rec, _ := resolveRequest(t, auth, header)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
		if msg := errorMessage(t, rec); msg != "Invalid Authorization header format. Expected: Bearer <token>" {
			t.Fatalf("header %q: unexpected error %q", header, msg)
		}
	}
}

func TestResolveExpiredToken(t *testing.T) {
	auth, tokens := newTestAuth(t, -time.Minute)

	tok, err := tokens.Issue(42)
	if err != nil {
		t.Fatal(err)
	}

	rec, _ := resolveRequest(t, auth, "Bearer "+tok)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Token has expired" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestResolveGarbageToken(t *testing.T) {
	auth, _ := newTestAuth(t, time.Hour)

	rec, _ := resolveRequest(t, auth, "Bearer not.a.token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Invalid token" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestResolveDeletedIdentity(t *testing.T) {
	auth, tokens := newTestAuth(t, time.Hour)

	tok, err := tokens.Issue(7) // no such identity in the store
	if err != nil {
		t.Fatal(err)
	}

	rec, _ := resolveRequest(t, auth, "Bearer "+tok)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "User not found" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestRequireIdentity(t *testing.T) {
	handler := RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/users/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous request, got %d", rec.Code)
	}

	ctx := context.WithValue(req.Context(), IdentityContextKey, &models.Identity{ID: 1})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for authenticated request, got %d", rec.Code)
	}
}
