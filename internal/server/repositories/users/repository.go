// Package users declares the account store and its PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/tinyauth/internal/server/models"
)

// Repository defines account persistence. Email and username lookups are
// case-insensitive. Missing rows are reported as common.ErrorNotFound and
// unique violations as common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// EmailTaken and UsernameTaken ignore the row with excludeID (may be empty).
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)

	// List returns users newest first; inactive ones only when includeInactive.
	List(ctx context.Context, includeInactive bool) ([]*models.User, error)

	// Update writes profile, credential and status columns. The session
	// columns (refresh_token_hash, token_version) are left untouched.
	Update(ctx context.Context, user *models.User) error

	SetRefreshTokenHash(ctx context.Context, id string, hash *string) error

	// RotateRefreshTokenHash replaces oldHash with newHash only if oldHash is
	// still current. It reports whether the swap happened.
	RotateRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) (bool, error)

	// RevokeSessions clears the refresh hash and bumps token_version,
	// returning the new version.
	RevokeSessions(ctx context.Context, id string) (int, error)
}
