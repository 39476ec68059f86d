package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/kajix/internal/dbx"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/scraped"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same service
// code runs on a plain connection or inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	Scraped(db dbx.DBTX) scraped.Repository
}
