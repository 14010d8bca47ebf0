package models

import "time"

// Purpose names the flow a single-use token belongs to.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify-email"
	PurposePasswordReset Purpose = "password-reset"
	PurposeInvite        Purpose = "invite"
)

// SingleUseToken is an email verification or password reset row. Only the
// digest of the token is stored.
type SingleUseToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Used reports whether the token has already been redeemed.
func (t *SingleUseToken) Used() bool {
	return t.UsedAt != nil
}
