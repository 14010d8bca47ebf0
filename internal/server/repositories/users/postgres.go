package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, username, password_hash, is_admin, is_active, is_verified,
		refresh_token_hash, token_version, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	var refresh sql.NullString
	var updated sql.NullTime

	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.IsActive, &u.IsVerified,
		&refresh, &u.TokenVersion, &u.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}

	if refresh.Valid {
		u.RefreshTokenHash = &refresh.String
	}
	if updated.Valid {
		u.UpdatedAt = &updated.Time
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO users (id, email, username, password_hash, is_admin, is_active, is_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING token_version, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash, user.IsAdmin, user.IsActive, user.IsVerified,
	).Scan(&user.TokenVersion, &user.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `lower(email) = lower($1)`, email)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `lower(username) = lower($1)`, username)
}

func (r *PostgresRepository) taken(ctx context.Context, column, value, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE lower(` + column + `) = lower($1) AND ($2 = '' OR id::text <> $2))`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	return r.taken(ctx, "email", email, excludeID)
}

func (r *PostgresRepository) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	return r.taken(ctx, "username", username, excludeID)
}

func (r *PostgresRepository) List(ctx context.Context, includeInactive bool) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ($1 OR is_active) ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	query :=
		`UPDATE users
		 SET email = $2, username = $3, password_hash = $4, is_admin = $5, is_active = $6, is_verified = $7,
		     updated_at = now()
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash, user.IsAdmin, user.IsActive, user.IsVerified)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}

	return requireOneRow(res)
}

func (r *PostgresRepository) SetRefreshTokenHash(ctx context.Context, id string, hash *string) error {
	query := `UPDATE users SET refresh_token_hash = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) RotateRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	query :=
		`UPDATE users SET refresh_token_hash = $3
		 WHERE id = $1 AND refresh_token_hash = $2
		 `

	res, err := r.db.ExecContext(ctx, query, id, oldHash, newHash)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeSessions(ctx context.Context, id string) (int, error) {
	query :=
		`UPDATE users SET refresh_token_hash = NULL, token_version = token_version + 1
		 WHERE id = $1
		 RETURNING token_version
		 `

	var version int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
