package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/kajix/internal/common"
	"github.com/dmitrijs2005/kajix/internal/dbx"
	"github.com/dmitrijs2005/kajix/internal/server/models"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/repomanager"
)

// PostgresStore keeps every token as a temporary_tokens row. Rows are
// flagged rather than deleted; expiry is detected lazily on lookup.
type PostgresStore struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	now   func() time.Time
}

func NewPostgresStore(db *sql.DB, repos repomanager.RepositoryManager) *PostgresStore {
	return &PostgresStore{db: db, repos: repos, now: time.Now}
}

func (s *PostgresStore) Put(ctx context.Context, r Record) error {
	return s.put(ctx, s.db, r)
}

// PutAll inserts all records in one transaction.
func (s *PostgresStore) PutAll(ctx context.Context, rs ...Record) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, r := range rs {
			if err := s.put(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) put(ctx context.Context, db dbx.DBTX, r Record) error {
	row := &models.TemporaryToken{
		Kind:         r.Kind,
		UserID:       r.UserID,
		SubjectEmail: r.Email,
		Token:        r.Value,
		ExpiresAt:    r.ExpiresAt,
	}
	if err := s.repos.Tokens(db).Create(ctx, row); err != nil {
		return fmt.Errorf("store %s token: %w", r.Kind, err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, k Key) (bool, error) {
	repo := s.repos.Tokens(s.db)

	row, err := repo.Find(ctx, k.Kind, k.UserID, k.Value)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if row.IsUsed || row.IsExpired {
		return false, nil
	}
	if !s.now().Before(row.ExpiresAt) {
		if err := repo.MarkExpired(ctx, row.ID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) MarkUsed(ctx context.Context, k Key) (bool, error) {
	return s.repos.Tokens(s.db).MarkUsed(ctx, k.Kind, k.UserID, k.Value)
}

func (s *PostgresStore) Delete(ctx context.Context, k Key) error {
	return s.repos.Tokens(s.db).Delete(ctx, k.Kind, k.UserID, k.Value)
}

func (s *PostgresStore) RevokeUser(ctx context.Context, userID string) error {
	_, err := s.repos.Tokens(s.db).RevokeUser(ctx, userID)
	return err
}
