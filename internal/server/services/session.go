package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/cryptox"
	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/logging"
	"github.com/dmitrijs2005/tinyauth/internal/server/auth"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/users"
)

const (
	msgBadCredentials   = "Incorrect email/username or password"
	msgInactive         = "Account is inactive. Please contact an administrator."
	msgUnverified       = "Email not verified. Check your inbox for a verification link."
	msgInvalidRefresh   = "Invalid refresh token"
	msgCouldNotValidate = "Could not validate credentials"
	msgInvalidToken     = "Invalid token"
	msgUserNotFound     = "User not found"
)

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	User   *models.User
	Tokens auth.TokenPair
}

// SessionService drives the login / refresh / logout lifecycle. A user has a
// live session while users.refresh_token_hash is set; only the refresh token
// whose digest matches it can be exchanged, and each exchange rotates it.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	hasher      *cryptox.PasswordHasher
	log         logging.Logger
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, codec *auth.Codec,
	hasher *cryptox.PasswordHasher, log logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		codec:       codec,
		hasher:      hasher,
		log:         log.With("module", "session"),
	}
}

// Codec exposes the token codec, e.g. for cookie lifetimes.
func (s *SessionService) Codec() *auth.Codec {
	return s.codec
}

func identityOf(u *models.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Username: u.Username, TokenVersion: u.TokenVersion}
}

// findByIdentifier resolves an email (when identifier contains "@") or a
// username, both case-insensitively.
func findByIdentifier(ctx context.Context, repo users.Repository, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return repo.GetByEmail(ctx, identifier)
	}
	return repo.GetByUsername(ctx, identifier)
}

// checkLoginable enforces that only active, verified accounts hold sessions.
func checkLoginable(u *models.User) error {
	if !u.IsActive {
		return common.Forbidden(msgInactive)
	}
	if !u.IsVerified {
		return common.Forbidden(msgUnverified)
	}
	return nil
}

// revokeSessions clears the stored refresh digest and bumps token_version so
// that every token issued so far stops working.
func revokeSessions(ctx context.Context, repo users.Repository, u *models.User) error {
	version, err := repo.RevokeSessions(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("error revoking sessions: %w", err)
	}
	u.RefreshTokenHash = nil
	u.TokenVersion = version
	return nil
}

// Login checks credentials and opens a session. Unknown accounts and wrong
// passwords fail identically, after the same amount of bcrypt work.
func (s *SessionService) Login(ctx context.Context, identifier, password string) (res *LoginResult, err error) {
	ctx, span := startSpan(ctx, "SessionService.Login")
	defer func() { endSpan(span, err) }()

	user, err := findByIdentifier(ctx, s.repomanager.Users(s.db), identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyDummy(password)
			return nil, common.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.log.Info(ctx, "login rejected", "user_id", user.ID)
		return nil, common.Unauthorized(msgBadCredentials)
	}

	if err := checkLoginable(user); err != nil {
		return nil, err
	}

	var pair auth.TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		pair, err = s.codec.IssuePair(identityOf(user))
		if err != nil {
			return fmt.Errorf("error issuing tokens: %w", err)
		}

		hash := cryptox.HashOpaque(pair.RefreshToken)
		if err := s.repomanager.Users(tx).SetRefreshTokenHash(ctx, user.ID, &hash); err != nil {
			return fmt.Errorf("error storing refresh token: %w", err)
		}
		user.RefreshTokenHash = &hash
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "login succeeded", "user_id", user.ID)
	return &LoginResult{User: user, Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new pair. The stored digest is
// swapped only if it still matches the presented token, so of two racing
// calls with the same token exactly one wins.
func (s *SessionService) Refresh(ctx context.Context, raw string) (res *LoginResult, err error) {
	ctx, span := startSpan(ctx, "SessionService.Refresh")
	defer func() { endSpan(span, err) }()

	claims, err := s.codec.Parse(raw, auth.KindRefresh)
	if err != nil {
		return nil, common.Unauthorized(msgInvalidRefresh)
	}

	var (
		user *models.User
		pair auth.TokenPair
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err = repo.GetByID(ctx, claims.UserID())
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.Unauthorized(msgInvalidRefresh)
			}
			return fmt.Errorf("error loading user: %w", err)
		}

		presented := cryptox.HashOpaque(raw)
		if user.RefreshTokenHash == nil ||
			subtle.ConstantTimeCompare([]byte(*user.RefreshTokenHash), []byte(presented)) != 1 ||
			claims.Version != user.TokenVersion {
			return common.Unauthorized(msgInvalidRefresh)
		}

		if err := checkLoginable(user); err != nil {
			return err
		}

		pair, err = s.codec.IssuePair(identityOf(user))
		if err != nil {
			return fmt.Errorf("error issuing tokens: %w", err)
		}

		next := cryptox.HashOpaque(pair.RefreshToken)
		swapped, err := repo.RotateRefreshTokenHash(ctx, user.ID, presented, next)
		if err != nil {
			return fmt.Errorf("error rotating refresh token: %w", err)
		}
		if !swapped {
			return common.Unauthorized(msgInvalidRefresh)
		}
		user.RefreshTokenHash = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &LoginResult{User: user, Tokens: pair}, nil
}

// Logout ends every session of the user.
func (s *SessionService) Logout(ctx context.Context, user *models.User) (err error) {
	ctx, span := startSpan(ctx, "SessionService.Logout")
	defer func() { endSpan(span, err) }()

	if err := revokeSessions(ctx, s.repomanager.Users(s.db), user); err != nil {
		return err
	}
	s.log.Info(ctx, "logout", "user_id", user.ID)
	return nil
}

// Authenticate resolves the user behind an access token. Tokens minted
// before the user's last revocation are rejected.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (user *models.User, err error) {
	ctx, span := startSpan(ctx, "SessionService.Authenticate")
	defer func() { endSpan(span, err) }()

	claims, err := s.codec.Parse(accessToken, auth.KindAccess)
	if err != nil {
		return nil, common.Unauthorized(msgCouldNotValidate)
	}

	user, err = s.repomanager.Users(s.db).GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Unauthorized(msgCouldNotValidate)
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	if claims.Version != user.TokenVersion {
		return nil, common.Unauthorized(msgCouldNotValidate)
	}

	if err := checkLoginable(user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyAccessToken is token introspection: it reports the owner of a
// still-valid access token without enforcing account status.
func (s *SessionService) VerifyAccessToken(ctx context.Context, accessToken string) (user *models.User, err error) {
	ctx, span := startSpan(ctx, "SessionService.VerifyAccessToken")
	defer func() { endSpan(span, err) }()

	claims, err := s.codec.Parse(accessToken, auth.KindAccess)
	if err != nil {
		return nil, common.Unauthorized(msgInvalidToken)
	}

	user, err = s.repomanager.Users(s.db).GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Unauthorized(msgUserNotFound)
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	if claims.Version != user.TokenVersion {
		return nil, common.Unauthorized(msgInvalidToken)
	}
	return user, nil
}
