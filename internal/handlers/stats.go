package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers    int64  `json:"total_users"`
	TotalDialogs  int64  `json:"total_dialogs"`
	TotalMessages int64  `json:"total_messages"`
	LastActivity  string `json:"last_activity"`
}

// Stats returns public aggregate counts. No per-user or per-dialog data is
// exposed here.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalUsers, err := h.db.CountIdentities(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count users")
		return
	}

	totalDialogs, err := h.db.CountDialogs(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count dialogs")
		return
	}

	totalMessages, err := h.db.CountMessages(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	lastMessageTime, err := h.db.LastMessageTime(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get last activity")
		return
	}

	lastActivity := "no activity yet"
	if lastMessageTime != nil {
		lastActivity = formatTimeAgo(*lastMessageTime)
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:    totalUsers,
		TotalDialogs:  totalDialogs,
		TotalMessages: totalMessages,
		LastActivity:  lastActivity,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return strconv.Itoa(mins) + " minutes ago"
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return strconv.Itoa(hours) + " hours ago"
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return strconv.Itoa(days) + " days ago"
	}
}
