// Package invites declares the invitation store and its PostgreSQL
// implementation.
package invites

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/server/models"
)

// Repository defines invitation persistence. There is one row per
// lower-cased email address.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*models.Invite, error)
	FindByHash(ctx context.Context, hash string) (*models.Invite, error)

	// Upsert creates the invite for invite.Email or overwrites the token,
	// expiry and inviter of an existing unaccepted one. An accepted invite
	// is left untouched and common.ErrorConflict is returned.
	Upsert(ctx context.Context, invite *models.Invite) error

	// MarkAccepted stamps the accepting user only if the invite is still
	// open and reports whether this call won.
	MarkAccepted(ctx context.Context, id, userID string, at time.Time) (bool, error)
}
