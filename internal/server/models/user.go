// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account row.
//
// RefreshTokenHash holds the SHA-256 digest of the only refresh token that
// may currently be redeemed; nil means no live session. TokenVersion is
// bumped on every revocation and is embedded in issued tokens.
type User struct {
	ID               string
	Email            string
	Username         string
	PasswordHash     string
	IsAdmin          bool
	IsActive         bool
	IsVerified       bool
	RefreshTokenHash *string
	TokenVersion     int
	CreatedAt        time.Time
	UpdatedAt        *time.Time
}
