// Package auth signs and verifies bearer tokens and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/kajix/internal/common"
	"github.com/dmitrijs2005/kajix/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the identity of the token owner. Subject holds the user
// id and ID (jti) a random nonce, so two tokens minted for the same user in
// the same instant are never equal.
type Claims struct {
	jwt.RegisteredClaims
	Email    string           `json:"email"`
	Username string           `json:"username"`
	Kind     models.TokenKind `json:"kind"`
}

func (c *Claims) Identity() models.Identity {
	return models.Identity{UserID: c.Subject, Email: c.Email, Username: c.Username}
}

// GenerateToken signs an HS256 token of the given kind valid for ttl.
// It also returns the expiry it embedded.
func GenerateToken(id models.Identity, kind models.TokenKind, secretKey []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:    id.Email,
		Username: id.Username,
		Kind:     kind,
	})

	signed, err := token.SignedString(secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies signature and expiry. Expired tokens yield
// common.ErrTokenExpired, anything else wrong common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" || !claims.Kind.Valid() {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
