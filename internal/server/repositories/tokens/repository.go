// Package tokens declares the store for single-use email tokens
// (verification and password reset) keyed by their SHA-256 digest.
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/server/models"
)

// Table selects which single-use token table a repository is bound to.
type Table string

const (
	EmailVerifications Table = "email_verifications"
	PasswordResets     Table = "password_resets"
)

// Repository defines operations for issuing and redeeming single-use tokens.
type Repository interface {
	// Create stores a new token row. An empty ID is filled in.
	Create(ctx context.Context, token *models.SingleUseToken) error

	// FindByHash looks a token up by digest, returning common.ErrorNotFound
	// when absent. Used and expired rows are returned as is.
	FindByHash(ctx context.Context, hash string) (*models.SingleUseToken, error)

	// MarkUsed stamps used_at only if the token is still unused and reports
	// whether this call won.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)

	// InvalidateForUser stamps used_at on every unused token of userID and
	// returns how many were consumed.
	InvalidateForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}
