// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/server/migrations"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/invites"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes schema migration hooks.
type PostgresRepositoryManager struct{}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// EmailVerifications returns a tokens.Repository over email_verifications.
func (m *PostgresRepositoryManager) EmailVerifications(db dbx.DBTX) tokens.Repository {
	return tokens.NewPostgresRepository(db, tokens.EmailVerifications)
}

// PasswordResets returns a tokens.Repository over password_resets.
func (m *PostgresRepositoryManager) PasswordResets(db dbx.DBTX) tokens.Repository {
	return tokens.NewPostgresRepository(db, tokens.PasswordResets)
}

// Invites returns an invites.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Invites(db dbx.DBTX) invites.Repository {
	return invites.NewPostgresRepository(db)
}

// gooseUpContext and gooseDownContext are seams for testing.
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseDownContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.DownContext(ctx, db, dir, opts...)
	}
)

func setupGoose() error {
	goose.SetBaseFS(migrations.Migrations)
	return goose.SetDialect("pgx")
}

// RunMigrations sets up goose with the embedded migrations and applies all
// pending ones against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func (m *PostgresRepositoryManager) RollbackMigration(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	return gooseDownContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}

// OpenPostgres opens a pgx-backed *sql.DB for dsn and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}
