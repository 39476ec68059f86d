// Package models defines server-side data models persisted in the database
// and returned by the services.
package models

import "time"

// User is a registered account. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// EmailVerifiedAt is set once the address has been confirmed.
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
}

// Public returns a copy of u without credential material.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Identity is what an authenticated request knows about its caller.
type Identity struct {
	UserID   string
	Email    string
	Username string
}

func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Email: u.Email, Username: u.Username}
}
