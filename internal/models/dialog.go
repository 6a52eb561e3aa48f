package models

import "time"

// Dialog is a 1:1 conversation between two identities. The pair is stored in
// canonical form: User1ID < User2ID, so each unordered pair maps to exactly
// one row regardless of who initiated it.
type Dialog struct {
	ID        int64     `json:"id"`
	User1ID   int64     `json:"user1_id"`
	User2ID   int64     `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// OtherUserID returns the participant that is not the given identity.
func (d *Dialog) OtherUserID(identityID int64) int64 {
	if d.User1ID == identityID {
		return d.User2ID
	}
	return d.User1ID
}

// HasParticipant reports whether the identity is one of the dialog's two
// participants.
func (d *Dialog) HasParticipant(identityID int64) bool {
	return d.User1ID == identityID || d.User2ID == identityID
}
