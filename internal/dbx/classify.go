package dbx

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/kajix/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes we translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

// Classify maps a driver error onto the closed set of repository error kinds
// so callers never inspect driver-specific codes:
//
//	sql.ErrNoRows          -> common.ErrorNotFound
//	unique violation       -> common.ErrorConflict
//	foreign key violation  -> common.ErrorBadRequest
//	invalid text (bad id)  -> common.ErrorBadRequest
//
// Any other error is returned wrapped with "db error" and is treated as an
// internal failure upstream. A nil error stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", common.ErrorConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: invalid reference (%s)", common.ErrorBadRequest, pgErr.ConstraintName)
		case pgInvalidTextRepr:
			return fmt.Errorf("%w: malformed value", common.ErrorBadRequest)
		}
	}

	return fmt.Errorf("db error: %w", err)
}
