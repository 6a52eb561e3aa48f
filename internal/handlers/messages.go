package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cipherdial/cipherdial/internal/api/middleware"
	"github.com/cipherdial/cipherdial/internal/metrics"
	"github.com/cipherdial/cipherdial/internal/models"
	"github.com/cipherdial/cipherdial/internal/store"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

// SendMessageRequest represents the send message request body. Ciphertext is
// opaque client-encrypted payload; the media_* fields are required for image
// messages only.
type SendMessageRequest struct {
	Ciphertext  string `json:"ciphertext"`
	ContentType string `json:"content_type"`
	MediaMime   string `json:"media_mime"`
	MediaName   string `json:"media_name"`
	MediaSize   *int64 `json:"media_size"`
}

// MessageListResponse is a paginated window into a dialog's log.
type MessageListResponse struct {
	Items  []models.Message `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// afterTimeFormats are the accepted layouts for the "after" query parameter.
// The timezone-less form is interpreted as UTC.
var afterTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func parseAfter(value string) (time.Time, bool) {
	for _, layout := range afterTimeFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ListMessages returns a window of the dialog's log, oldest-first for stable
// cursoring. Out-of-range limit and offset are clamped, never rejected.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())

	dialog, ok := h.dialogForParticipant(w, r, ident.ID)
	if !ok {
		return
	}

	q := r.URL.Query()

	limit := defaultMessageLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = v
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		offset = v
	}
	if offset < 0 {
		offset = 0
	}

	filter := store.MessageFilter{Limit: limit, Offset: offset}
	if raw := q.Get("after"); raw != "" {
		after, ok := parseAfter(raw)
		if !ok {
			h.Error(w, http.StatusBadRequest, "after must be ISO datetime")
			return
		}
		filter.After = &after
	}

	msgs, total, err := h.db.ListMessages(r.Context(), dialog.ID, filter)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, MessageListResponse{
		Items:  msgs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// SendMessage appends a message to the dialog. The sender must be a
// participant; the server assigns id and timestamp.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())

	dialog, ok := h.dialogForParticipant(w, r, ident.ID)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Ciphertext == "" {
		h.Error(w, http.StatusBadRequest, "ciphertext is required and must be a non-empty string")
		return
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = models.ContentText
	}
	if contentType != models.ContentText && contentType != models.ContentImage {
		h.Error(w, http.StatusBadRequest, "content_type must be 'text' or 'image'")
		return
	}

	msg := &models.Message{
		DialogID:    dialog.ID,
		SenderID:    ident.ID,
		Ciphertext:  req.Ciphertext,
		ContentType: contentType,
	}

	if contentType == models.ContentImage {
		if strings.TrimSpace(req.MediaMime) == "" {
			h.Error(w, http.StatusBadRequest, "media_mime is required and must be a non-empty string for image messages")
			return
		}
		if strings.TrimSpace(req.MediaName) == "" {
			h.Error(w, http.StatusBadRequest, "media_name is required and must be a non-empty string for image messages")
			return
		}
		if req.MediaSize == nil {
			h.Error(w, http.StatusBadRequest, "media_size is required and must be a positive integer for image messages")
			return
		}
		if *req.MediaSize <= 0 {
			h.Error(w, http.StatusBadRequest, "media_size must be greater than 0 for image messages")
			return
		}
		msg.MediaMime = req.MediaMime
		msg.MediaName = req.MediaName
		msg.MediaSize = req.MediaSize
	}

	created, err := h.db.CreateMessage(r.Context(), msg)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	metrics.MessagesSent.WithLabelValues(contentType).Inc()

	h.JSON(w, http.StatusCreated, created)
}
