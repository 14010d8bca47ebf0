package models

import "time"

// Invite is a pending or accepted invitation for an email address.
// There is at most one row per (lower-cased) email; re-inviting overwrites it.
type Invite struct {
	ID              string
	Email           string
	TokenHash       string
	ExpiresAt       time.Time
	InvitedByUserID *string
	AcceptedUserID  *string
	AcceptedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// Accepted reports whether the invite has been redeemed.
func (i *Invite) Accepted() bool {
	return i.AcceptedAt != nil
}
