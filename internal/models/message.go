package models

import "time"

// Message content types.
const (
	ContentText  = "text"
	ContentImage = "image"
)

// Message is one entry in a dialog's append-only log. Ciphertext is opaque
// client-encrypted payload; for image messages the media_* fields carry the
// attachment metadata (the blob itself is never stored server-side).
type Message struct {
	ID          int64     `json:"id"`
	DialogID    int64     `json:"dialog_id"`
	SenderID    int64     `json:"sender_id"`
	Ciphertext  string    `json:"ciphertext"`
	ContentType string    `json:"content_type"`
	MediaMime   string    `json:"media_mime,omitempty"`
	MediaName   string    `json:"media_name,omitempty"`
	MediaSize   *int64    `json:"media_size,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
