package models

import "time"

// Identity represents a registered account. Exactly one record exists per
// phone number; PasswordHash is a bcrypt hash and never leaves the server.
type Identity struct {
	ID           int64     `json:"id"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicUser is the profile shape exposed to other users.
type PublicUser struct {
	ID        int64  `json:"id"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Public returns the identity's public profile view.
func (i *Identity) Public() PublicUser {
	return PublicUser{
		ID:        i.ID,
		Phone:     i.Phone,
		FirstName: i.FirstName,
		LastName:  i.LastName,
	}
}
