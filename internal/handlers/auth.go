package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/cipherdial/cipherdial/internal/metrics"
	"github.com/cipherdial/cipherdial/internal/models"
	"github.com/cipherdial/cipherdial/internal/store"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// AuthResponse carries a fresh token plus the account's profile.
type AuthResponse struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

// Register handles account creation. The identity row is a single insert, so
// there is no window for a partially created account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Phone == "" {
		h.Error(w, http.StatusBadRequest, "phone is required")
		return
	}
	if len(req.Phone) > maxPhoneLen {
		h.Error(w, http.StatusBadRequest, "phone must be at most 32 characters")
		return
	}
	if len(req.Password) < minPasswordLen {
		h.Error(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	firstName := sanitizeName(req.FirstName)
	lastName := sanitizeName(req.LastName)
	if len(firstName) > maxNameLen {
		h.Error(w, http.StatusBadRequest, "first_name must be at most 150 characters")
		return
	}
	if len(lastName) > maxNameLen {
		h.Error(w, http.StatusBadRequest, "last_name must be at most 150 characters")
		return
	}

	// Fast path check; the unique constraint still guards the insert race.
	existing, err := h.db.GetIdentityByPhone(r.Context(), req.Phone)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.Error(w, http.StatusBadRequest, "Phone is already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	ident, err := h.db.CreateIdentity(r.Context(), req.Phone, string(hash), firstName, lastName)
	if err != nil {
		if errors.Is(err, store.ErrPhoneTaken) {
			h.Error(w, http.StatusBadRequest, "Phone is already registered")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	tok, err := h.tokens.Issue(ident.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	metrics.RegistrationsTotal.Inc()

	h.JSON(w, http.StatusCreated, AuthResponse{Token: tok, User: ident.Public()})
}

// Login handles credential verification. Unknown phone and wrong password
// collapse into one generic error so the endpoint cannot be used to probe for
// registered numbers.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Phone == "" || req.Password == "" {
		h.Error(w, http.StatusBadRequest, "phone and password are required")
		return
	}

	ident, err := h.db.GetIdentityByPhone(r.Context(), req.Phone)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if ident == nil || bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(req.Password)) != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		h.Error(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	tok, err := h.tokens.Issue(ident.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()

	h.JSON(w, http.StatusOK, AuthResponse{Token: tok, User: ident.Public()})
}
