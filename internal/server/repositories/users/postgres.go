// Package users stores registered accounts in PostgreSQL.
package users

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/kajix/internal/dbx"
	"github.com/dmitrijs2005/kajix/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts user and fills in the generated id and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, username, first_name, last_name, password_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.Username, user.FirstName, user.LastName, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify(err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT id, email, username, first_name, last_name, password_hash, email_verified_at, created_at, updated_at
		 FROM users
		 WHERE lower(email) = lower($1)
		 `
	return r.scanOne(ctx, query, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, email, username, first_name, last_name, password_hash, email_verified_at, created_at, updated_at
		 FROM users
		 WHERE id = $1
		 `
	return r.scanOne(ctx, query, id)
}

// UpdatePassword replaces the stored hash of user id.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	query :=
		`UPDATE users
		 SET password_hash = $2, updated_at = now()
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, id, hash)
}

// MarkEmailVerified stamps the first verification; later calls keep the
// original timestamp.
func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, id string) error {
	query :=
		`UPDATE users
		 SET email_verified_at = COALESCE(email_verified_at, now()), updated_at = now()
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbx.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbx.Classify(err)
	}
	if n == 0 {
		return dbx.Classify(sql.ErrNoRows)
	}
	return nil
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	var verified sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Username, &user.FirstName, &user.LastName,
		&user.PasswordHash, &verified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify(err)
	}
	if verified.Valid {
		user.EmailVerifiedAt = &verified.Time
	}
	return user, nil
}
