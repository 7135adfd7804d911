package repomanager

import (
	"context"
	"database/sql"

	"github.com/jonathandlab/coyn/internal/dbx"
	"github.com/jonathandlab/coyn/internal/server/repositories/refreshtokens"
	"github.com/jonathandlab/coyn/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// path works on a plain connection and inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
