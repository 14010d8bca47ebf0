// Package common contains shared constants and sentinel errors used across
// the authentication server.
package common

const (
	// AccessTokenCookieName is the cookie that carries the access token for
	// browser clients.
	AccessTokenCookieName = "access_token"

	// RefreshTokenCookieName is the cookie that carries the refresh token.
	RefreshTokenCookieName = "refresh_token"

	// TokenType is reported to clients alongside issued token pairs.
	TokenType = "bearer"
)
