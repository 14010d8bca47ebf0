package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/invites"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX so that services can
// run several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	RollbackMigration(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	EmailVerifications(db dbx.DBTX) tokens.Repository
	PasswordResets(db dbx.DBTX) tokens.Repository
	Invites(db dbx.DBTX) invites.Repository
}
