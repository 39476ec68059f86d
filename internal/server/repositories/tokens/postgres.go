package tokens

import (
	"context"

	"github.com/dmitrijs2005/kajix/internal/dbx"
	"github.com/dmitrijs2005/kajix/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.TemporaryToken) error {
	query := `
		INSERT INTO temporary_tokens (kind, user_id, subject_email, token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, issued_at
	`
	err := r.db.QueryRowContext(ctx, query, string(t.Kind), t.UserID, t.SubjectEmail, t.Token, t.ExpiresAt).
		Scan(&t.ID, &t.IssuedAt)
	return dbx.Classify(err)
}

func (r *PostgresRepository) Find(ctx context.Context, kind models.TokenKind, userID, token string) (*models.TemporaryToken, error) {
	query := `
		SELECT id, kind, user_id, subject_email, token, expires_at, is_used, is_expired, issued_at
		FROM temporary_tokens
		WHERE kind = $1 AND user_id = $2 AND token = $3
	`
	t := &models.TemporaryToken{}
	var k string
	err := r.db.QueryRowContext(ctx, query, string(kind), userID, token).Scan(
		&t.ID, &k, &t.UserID, &t.SubjectEmail, &t.Token, &t.ExpiresAt, &t.IsUsed, &t.IsExpired, &t.IssuedAt)
	if err != nil {
		return nil, dbx.Classify(err)
	}
	t.Kind = models.TokenKind(k)
	return t, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, kind models.TokenKind, userID, token string) (bool, error) {
	query := `
		UPDATE temporary_tokens
		SET is_used = TRUE
		WHERE kind = $1 AND user_id = $2 AND token = $3
		  AND NOT is_used AND NOT is_expired AND expires_at > now()
	`
	res, err := r.db.ExecContext(ctx, query, string(kind), userID, token)
	if err != nil {
		return false, dbx.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbx.Classify(err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) MarkExpired(ctx context.Context, id string) error {
	query := `
		UPDATE temporary_tokens
		SET is_expired = TRUE
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return dbx.Classify(err)
}

func (r *PostgresRepository) RevokeUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE temporary_tokens
		SET is_used = TRUE, is_expired = TRUE
		WHERE user_id = $1 AND NOT is_used AND NOT is_expired
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, dbx.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.Classify(err)
	}
	return n, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, kind models.TokenKind, userID, token string) error {
	query := `
		DELETE FROM temporary_tokens
		WHERE kind = $1 AND user_id = $2 AND token = $3
	`
	_, err := r.db.ExecContext(ctx, query, string(kind), userID, token)
	return dbx.Classify(err)
}
