package invites

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

const inviteColumns = `id, email, token_hash, expires_at, invited_by_user_id, accepted_user_id, accepted_at,
		created_at, updated_at`

// PostgresRepository implements invite storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) findOne(ctx context.Context, where string, arg any) (*models.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM user_invites WHERE ` + where

	var (
		inv                   models.Invite
		invitedBy, acceptedBy sql.NullString
		acceptedAt, updatedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&inv.ID, &inv.Email, &inv.TokenHash, &inv.ExpiresAt, &invitedBy, &acceptedBy, &acceptedAt,
		&inv.CreatedAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if invitedBy.Valid {
		inv.InvitedByUserID = &invitedBy.String
	}
	if acceptedBy.Valid {
		inv.AcceptedUserID = &acceptedBy.String
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	if updatedAt.Valid {
		inv.UpdatedAt = &updatedAt.Time
	}
	return &inv, nil
}

// FindByEmail returns the invite for email, compared case-insensitively.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Invite, error) {
	return r.findOne(ctx, `lower(email) = lower($1)`, email)
}

// FindByHash returns the invite whose token digest is hash.
func (r *PostgresRepository) FindByHash(ctx context.Context, hash string) (*models.Invite, error) {
	return r.findOne(ctx, `token_hash = $1`, hash)
}

// Upsert inserts or refreshes the open invite for invite.Email. On update
// the acceptance columns are reset and the row keeps its original id.
func (r *PostgresRepository) Upsert(ctx context.Context, invite *models.Invite) error {
	if invite.ID == "" {
		invite.ID = uuid.NewString()
	}

	query := `
		INSERT INTO user_invites (id, email, token_hash, expires_at, invited_by_user_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ((lower(email)))
		DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			invited_by_user_id = EXCLUDED.invited_by_user_id,
			accepted_user_id = NULL,
			accepted_at = NULL,
			updated_at = now()
			WHERE user_invites.accepted_at IS NULL
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		invite.ID, invite.Email, invite.TokenHash, invite.ExpiresAt, invite.InvitedByUserID,
	).Scan(&invite.ID, &invite.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	invite.AcceptedUserID = nil
	invite.AcceptedAt = nil
	return nil
}

// MarkAccepted records userID as the account created from the invite.
func (r *PostgresRepository) MarkAccepted(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	query := `
		UPDATE user_invites
		SET accepted_user_id = $2, accepted_at = $3, updated_at = $3
		WHERE id = $1 AND accepted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, userID, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}
