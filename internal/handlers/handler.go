package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/cipherdial/cipherdial/internal/store"
	"github.com/cipherdial/cipherdial/internal/token"
)

const (
	maxPhoneLen    = 32
	maxNameLen     = 150
	minPasswordLen = 6
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	redis  *store.RedisStore
	tokens *token.Service
}

// NewHandler creates a new Handler with the given stores and token service.
func NewHandler(db store.DataStore, redis *store.RedisStore, tokens *token.Service) *Handler {
	return &Handler{db: db, redis: redis, tokens: tokens}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims a display name and removes control characters. Length
// is validated separately so oversized input is rejected, not silently cut.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
}
