package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cipherdial/cipherdial/internal/api/middleware"
	"github.com/cipherdial/cipherdial/internal/models"
	"github.com/cipherdial/cipherdial/internal/store"
)

const searchResultLimit = 50

// UpdateProfileRequest is a partial profile update; absent fields are left
// untouched.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Me returns the authenticated user's own profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())

	// Re-read so a concurrent out-of-band delete surfaces as 404 rather
	// than a stale view.
	current, err := h.db.GetIdentityByID(r.Context(), ident.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if current == nil {
		h.Error(w, http.StatusNotFound, "Profile not found")
		return
	}

	h.JSON(w, http.StatusOK, current.Public())
}

// UpdateMe applies a partial update to the authenticated user's name fields.
// Phone and password are immutable through this surface.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var upd store.NameUpdate
	if req.FirstName != nil {
		name := sanitizeName(*req.FirstName)
		if len(name) > maxNameLen {
			h.Error(w, http.StatusBadRequest, "first_name must be at most 150 characters")
			return
		}
		upd.FirstName = &name
	}
	if req.LastName != nil {
		name := sanitizeName(*req.LastName)
		if len(name) > maxNameLen {
			h.Error(w, http.StatusBadRequest, "last_name must be at most 150 characters")
			return
		}
		upd.LastName = &name
	}

	updated, err := h.db.UpdateIdentityName(r.Context(), ident.ID, upd)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if updated == nil {
		h.Error(w, http.StatusNotFound, "Profile not found")
		return
	}

	h.JSON(w, http.StatusOK, updated.Public())
}

// Search finds users by phone substring, excluding the caller. The query
// param is required even when empty-valued results would be a full listing.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())

	if !r.URL.Query().Has("phone") {
		h.Error(w, http.StatusBadRequest, `Query param "phone" is required`)
		return
	}
	phone := r.URL.Query().Get("phone")

	if h.redis != nil {
		if body, ok := h.redis.GetCachedSearch(r.Context(), ident.ID, phone); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
	}

	idents, err := h.db.SearchIdentities(r.Context(), phone, ident.ID, searchResultLimit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	results := make([]models.PublicUser, 0, len(idents))
	for i := range idents {
		results = append(results, idents[i].Public())
	}

	if h.redis != nil {
		if body, err := json.Marshal(results); err == nil {
			h.redis.CacheSearch(r.Context(), ident.ID, phone, body)
		}
	}

	h.JSON(w, http.StatusOK, results)
}
