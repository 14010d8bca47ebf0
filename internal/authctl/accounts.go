package authctl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/tinyauth/internal/cryptox"
	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/tinyauth/internal/server/services"
)

// ErrAccountExists is returned by CreateAdmin when the email or username is
// already registered.
var ErrAccountExists = errors.New("account already exists")

// Account is a user to be created by an operator. Seeded and operator-made
// accounts are active and verified from the start.
type Account struct {
	Email    string
	Username string
	Password string
	Admin    bool
}

func (a Account) role() string {
	if a.Admin {
		return "admin"
	}
	return "user"
}

// Tool runs operator commands against one database.
type Tool struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	hasher *cryptox.PasswordHasher
	policy config.PasswordPolicy
	out    io.Writer
}

func NewTool(db *sql.DB, rm repomanager.RepositoryManager, hasher *cryptox.PasswordHasher,
	policy config.PasswordPolicy, out io.Writer) *Tool {
	return &Tool{db: db, rm: rm, hasher: hasher, policy: policy, out: out}
}

// Migrate applies all pending migrations.
func (t *Tool) Migrate(ctx context.Context) error {
	if err := t.rm.RunMigrations(ctx, t.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(t.out, "[OK] Migrations applied")
	return nil
}

// Rollback reverts the most recent migration.
func (t *Tool) Rollback(ctx context.Context) error {
	if err := t.rm.RollbackMigration(ctx, t.db); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	fmt.Fprintln(t.out, "[OK] Rolled back one migration")
	return nil
}

// Seed creates the given accounts in one transaction. Accounts whose email
// is already registered are skipped, so seeding can be repeated.
func (t *Tool) Seed(ctx context.Context, accounts ...Account) error {
	return dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := t.rm.Users(tx)
		for _, a := range accounts {
			created, err := t.create(ctx, repo, a)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(t.out, "[INFO] User %s already exists; skipping\n", normalizeEmail(a.Email))
				continue
			}
			fmt.Fprintf(t.out, "[OK] Created %s: %s (%s)\n", a.role(), normalizeEmail(a.Email), a.Username)
		}
		return nil
	})
}

// CreateAdmin registers a new administrator. Unlike Seed it fails when the
// email is taken and enforces the password policy.
func (t *Tool) CreateAdmin(ctx context.Context, a Account) error {
	a.Admin = true
	if err := services.CheckPassword(t.policy, a.Password); err != nil {
		return err
	}
	return dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := t.create(ctx, t.rm.Users(tx), a)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("%w: %s", ErrAccountExists, normalizeEmail(a.Email))
		}
		fmt.Fprintf(t.out, "[OK] Created admin: %s (%s)\n", normalizeEmail(a.Email), a.Username)
		return nil
	})
}

// create inserts a unless its email is taken, which it reports as false.
func (t *Tool) create(ctx context.Context, repo users.Repository, a Account) (bool, error) {
	email := normalizeEmail(a.Email)
	username := strings.TrimSpace(a.Username)
	if email == "" || username == "" || a.Password == "" {
		return false, errors.New("email, username and password are required")
	}

	taken, err := repo.EmailTaken(ctx, email, "")
	if err != nil {
		return false, err
	}
	if taken {
		return false, nil
	}

	taken, err = repo.UsernameTaken(ctx, username, "")
	if err != nil {
		return false, err
	}
	if taken {
		return false, fmt.Errorf("%w: username %s", ErrAccountExists, username)
	}

	hash, err := t.hasher.Hash(a.Password)
	if err != nil {
		if cryptox.IsTooLong(err) {
			return false, fmt.Errorf("password for %s is longer than %d bytes", email, cryptox.MaxPasswordBytes)
		}
		return false, fmt.Errorf("hash password: %w", err)
	}

	_, err = repo.Create(ctx, &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      a.Admin,
		IsActive:     true,
		IsVerified:   true,
	})
	if err != nil {
		return false, fmt.Errorf("create %s: %w", email, err)
	}
	return true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SeedAccountsFromEnv reads the default admin (ADMIN_EMAIL, ADMIN_USERNAME,
// ADMIN_PASSWORD) and regular user (USER_*) from getenv. All six are required.
func SeedAccountsFromEnv(getenv func(string) string) ([]Account, error) {
	read := func(prefix string, admin bool) (Account, error) {
		a := Account{
			Email:    getenv(prefix + "_EMAIL"),
			Username: getenv(prefix + "_USERNAME"),
			Password: getenv(prefix + "_PASSWORD"),
			Admin:    admin,
		}
		if a.Email == "" || a.Username == "" || a.Password == "" {
			return a, fmt.Errorf("%[1]s_EMAIL, %[1]s_USERNAME and %[1]s_PASSWORD must be set", prefix)
		}
		return a, nil
	}

	admin, err := read("ADMIN", true)
	if err != nil {
		return nil, err
	}
	user, err := read("USER", false)
	if err != nil {
		return nil, err
	}
	return []Account{admin, user}, nil
}
