package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS tokens (kind TEXT NOT NULL, token TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	return db
}

func tokenCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tokens`).Scan(&n))
	return n
}

func insertPair(access, refresh string) func(ctx context.Context, tx DBTX) error {
	return func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tokens(kind, token) VALUES ('ACCESS_TOKEN', ?)`, access); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO tokens(kind, token) VALUES ('REFRESH_TOKEN', ?)`, refresh)
		return err
	}
}

func TestWithTx_SQLite(t *testing.T) {
	tests := []struct {
		name      string
		seed      []string
		access    string
		refresh   string
		wantErr   bool
		wantCount int
	}{
		{name: "both rows committed", access: "a1", refresh: "r1", wantCount: 2},
		{name: "second insert fails, first is rolled back", seed: []string{"taken"}, access: "a1", refresh: "taken", wantErr: true, wantCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openSQLite(t)
			for _, v := range tt.seed {
				_, err := db.Exec(`INSERT INTO tokens(kind, token) VALUES ('SEED', ?)`, v)
				require.NoError(t, err)
			}

			err := WithTx(context.Background(), db, nil, insertPair(tt.access, tt.refresh))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCount, tokenCount(t, db))
		})
	}
}

func TestWithTx_PanicRollsBack(t *testing.T) {
	db := openSQLite(t)

	assert.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO tokens(kind, token) VALUES ('ACCESS_TOKEN', 'x')`)
			require.NoError(t, err)
			panic("kaput")
		})
	})
	assert.Zero(t, tokenCount(t, db))
}

func TestWithTx_DriverFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		setup   func(m sqlmock.Sqlmock)
		fnErr   error
		wantMsg string
	}{
		{
			name:    "begin",
			setup:   func(m sqlmock.Sqlmock) { m.ExpectBegin().WillReturnError(boom) },
			wantMsg: "begin tx: boom",
		},
		{
			name: "commit",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectCommit().WillReturnError(boom)
			},
			wantMsg: "commit tx: boom",
		},
		{
			name: "fn error with failing rollback",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectRollback().WillReturnError(errors.New("conn lost"))
			},
			fnErr:   boom,
			wantMsg: "rollback: conn lost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			tt.setup(mock)

			err = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error { return tt.fnErr })
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.ErrorIs(t, err, boom)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
