// Package auth issues and verifies the signed access and refresh tokens.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens. A token of one kind
// is never accepted where the other is expected.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrEmptySecret is returned by NewCodec when no signing secret is given.
var ErrEmptySecret = errors.New("auth: empty signing secret")

// Identity is what a token asserts about its holder.
type Identity struct {
	UserID       string
	Username     string
	TokenVersion int
}

// Claims is the JWT payload: sub, username, type, ver, exp, iat and jti.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Type     Kind   `json:"type"`
	Version  int    `json:"ver"`
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Codec signs and verifies HS256 tokens with a single process-wide secret.
// It is safe for concurrent use.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewCodec creates a Codec. Non-positive lifetimes fall back to 30 minutes
// for access tokens and 7 days for refresh tokens.
func NewCodec(secret []byte, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	s := make([]byte, len(secret))
	copy(s, secret)

	return &Codec{secret: s, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL is the lifetime of issued refresh tokens.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue signs a token of the given kind for id.
func (c *Codec) Issue(id Identity, kind Kind) (string, error) {
	var ttl time.Duration
	switch kind {
	case KindAccess:
		ttl = c.accessTTL
	case KindRefresh:
		ttl = c.refreshTTL
	default:
		return "", errors.New("auth: unknown token kind " + string(kind))
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Username: id.Username,
		Type:     kind,
		Version:  id.TokenVersion,
	})

	return token.SignedString(c.secret)
}

// IssuePair signs an access and a refresh token for id.
func (c *Codec) IssuePair(id Identity) (TokenPair, error) {
	access, err := c.Issue(id, KindAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := c.Issue(id, KindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Parse verifies token and returns its claims. Every failure (malformed,
// bad signature, algorithm other than HS256, expired, wrong kind, missing
// subject) is reported as common.ErrInvalidToken.
func (c *Codec) Parse(token string, expected Kind) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return nil, common.ErrInvalidToken
	}

	if claims.Type != expected || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
