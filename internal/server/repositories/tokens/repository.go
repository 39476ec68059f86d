// Package tokens keeps the durable record of every issued access and
// refresh token in the temporary_tokens table.
package tokens

import (
	"context"

	"github.com/dmitrijs2005/kajix/internal/server/models"
)

// Repository works on rows addressed by (kind, user id, token value).
type Repository interface {
	// Create stores a fresh VALID row.
	Create(ctx context.Context, t *models.TemporaryToken) error

	// Find returns the row or common.ErrorNotFound.
	Find(ctx context.Context, kind models.TokenKind, userID, token string) (*models.TemporaryToken, error)

	// MarkUsed flips a still valid row to used in a single statement and
	// reports whether this call did it. Rows that are already used, flagged
	// expired or past expires_at are left alone.
	MarkUsed(ctx context.Context, kind models.TokenKind, userID, token string) (bool, error)

	// MarkExpired flags a row whose expiry has passed.
	MarkExpired(ctx context.Context, id string) error

	// RevokeUser flags every live row of the user as used and expired and
	// returns how many were affected.
	RevokeUser(ctx context.Context, userID string) (int64, error)

	// Delete physically removes a row. Only used to undo a half-issued pair.
	Delete(ctx context.Context, kind models.TokenKind, userID, token string) error
}
