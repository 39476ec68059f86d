package users

import (
	"context"

	"github.com/dmitrijs2005/kajix/internal/server/models"
)

// Repository errors follow dbx.Classify: common.ErrorNotFound for a missing
// user, common.ErrorConflict for a taken email or username.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	MarkEmailVerified(ctx context.Context, id string) error
}
