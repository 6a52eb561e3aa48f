package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cipherdial/cipherdial/internal/api/middleware"
	"github.com/cipherdial/cipherdial/internal/metrics"
	"github.com/cipherdial/cipherdial/internal/models"
)

// CreateDialogRequest represents the create dialog request body.
type CreateDialogRequest struct {
	UserID *int64 `json:"user_id"`
}

// DialogResponse is a dialog annotated with the other participant's public
// profile and the latest message, if any.
type DialogResponse struct {
	ID          int64             `json:"id"`
	Participant models.PublicUser `json:"participant"`
	LastMessage *models.Message   `json:"last_message,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// dialogResponse builds the API view of a dialog from the caller's
// perspective.
func (h *Handler) dialogResponse(r *http.Request, d *models.Dialog, viewerID int64) (*DialogResponse, error) {
	otherID := d.OtherUserID(viewerID)

	participant := models.PublicUser{ID: otherID}
	other, err := h.db.GetIdentityByID(r.Context(), otherID)
	if err != nil {
		return nil, err
	}
	if other != nil {
		participant = other.Public()
	}

	last, err := h.db.LatestMessage(r.Context(), d.ID)
	if err != nil {
		return nil, err
	}

	return &DialogResponse{
		ID:          d.ID,
		Participant: participant,
		LastMessage: last,
		CreatedAt:   d.CreatedAt,
	}, nil
}

// ListDialogs returns all dialogs the caller participates in, newest-first.
func (h *Handler) ListDialogs(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())

	dialogs, err := h.db.ListDialogsForIdentity(r.Context(), ident.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make([]DialogResponse, 0, len(dialogs))
	for i := range dialogs {
		resp, err := h.dialogResponse(r, &dialogs[i], ident.ID)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
		out = append(out, *resp)
	}

	h.JSON(w, http.StatusOK, out)
}

// CreateDialog opens (or returns) the dialog between the caller and another
// user. The operation is idempotent: both directions and repeated calls
// converge on the same canonical pair. 201 signals a newly created dialog,
// 200 an existing one.
func (h *Handler) CreateDialog(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())

	var req CreateDialogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == nil {
		h.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	otherID := *req.UserID
	if otherID == ident.ID {
		h.Error(w, http.StatusBadRequest, "Cannot create dialog with yourself")
		return
	}

	other, err := h.db.GetIdentityByID(r.Context(), otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if other == nil {
		h.Error(w, http.StatusNotFound, "User not found")
		return
	}

	dialog, created, err := h.db.GetOrCreateDialog(r.Context(), ident.ID, otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create dialog")
		return
	}

	resp, err := h.dialogResponse(r, dialog, ident.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		metrics.DialogsCreated.Inc()
	}
	h.JSON(w, status, resp)
}

// RetrieveDialog returns a single dialog the caller participates in.
func (h *Handler) RetrieveDialog(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())

	dialog, ok := h.dialogForParticipant(w, r, ident.ID)
	if !ok {
		return
	}

	resp, err := h.dialogResponse(r, dialog, ident.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, resp)
}

// dialogForParticipant loads the dialog from the URL and enforces that the
// caller is one of its two participants. On failure it writes the error
// response and returns ok=false.
func (h *Handler) dialogForParticipant(w http.ResponseWriter, r *http.Request, identityID int64) (*models.Dialog, bool) {
	dialogID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.Error(w, http.StatusNotFound, "Dialog not found")
		return nil, false
	}

	dialog, err := h.db.GetDialog(r.Context(), dialogID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	if dialog == nil {
		h.Error(w, http.StatusNotFound, "Dialog not found")
		return nil, false
	}
	if !dialog.HasParticipant(identityID) {
		h.Error(w, http.StatusForbidden, "Forbidden")
		return nil, false
	}
	return dialog, true
}
