package models

import "time"

// TokenKind tells token purposes apart, both in the signed claims and in
// the token store.
type TokenKind string

const (
	AccessToken            TokenKind = "ACCESS_TOKEN"
	RefreshToken           TokenKind = "REFRESH_TOKEN"
	EmailConfirmationToken TokenKind = "EMAIL_CONFIRMATION"
)

func (k TokenKind) Valid() bool {
	switch k {
	case AccessToken, RefreshToken, EmailConfirmationToken:
		return true
	}
	return false
}

// TemporaryToken is the durable row kept for every issued token. Rows are
// flagged, not deleted, when they stop being valid.
type TemporaryToken struct {
	ID           string
	Kind         TokenKind
	UserID       string
	SubjectEmail string
	Token        string
	ExpiresAt    time.Time
	IsUsed       bool
	IsExpired    bool
	IssuedAt     time.Time
}

// TokenPair is the result of a login or a refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Session is a token pair together with the user it was issued to.
type Session struct {
	TokenPair
	User User `json:"user"`
}
