package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx) for one of the token tables.
type PostgresRepository struct {
	db    dbx.DBTX
	table Table
}

// NewPostgresRepository constructs a repository bound to the given DBTX and table.
func NewPostgresRepository(db dbx.DBTX, table Table) *PostgresRepository {
	return &PostgresRepository{db: db, table: table}
}

// Create inserts token. The row id is generated when empty.
func (r *PostgresRepository) Create(ctx context.Context, token *models.SingleUseToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}

	query := `
		INSERT INTO ` + string(r.table) + ` (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, token.ID, token.UserID, token.TokenHash, token.ExpiresAt).
		Scan(&token.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByHash returns the token row with the given digest.
func (r *PostgresRepository) FindByHash(ctx context.Context, hash string) (*models.SingleUseToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM ` + string(r.table) + `
		WHERE token_hash = $1
	`
	t := &models.SingleUseToken{}
	var usedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, hash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return t, nil
}

// MarkUsed sets used_at = at where the row is still unused.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE ` + string(r.table) + `
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// InvalidateForUser sets used_at = at on all unused rows of userID.
func (r *PostgresRepository) InvalidateForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `
		UPDATE ` + string(r.table) + `
		SET used_at = $2
		WHERE user_id = $1 AND used_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
