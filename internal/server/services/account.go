package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/cryptox"
	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/logging"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/users"
)

const (
	msgSignupDisabled   = "Self-serve signup is disabled. Ask an administrator for an invitation."
	msgEmailRegistered  = "Email already registered"
	msgUsernameInUse    = "Username already in use"
	msgCurrentPassword  = "Current password is incorrect"
	msgCannotDeactivate = "You cannot deactivate your own account"
	msgVerificationSent = "If an account with that email or username exists and is not verified, a verification email has been sent."
	msgResetRequested   = "If an account with that email exists, a password reset link has been sent."
	msgPasswordUpdated  = "Password updated successfully. Please sign in again."
	msgPasswordReset    = "Password has been reset. Please sign in with your new password."
	msgEmailVerified    = "Email verified successfully"
)

// AccountService owns self-service account flows (signup, email
// verification, password reset and change, profile update) and the admin
// user management operations.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.PasswordHasher
	notifier    Notifier
	limiter     Limiter
	log         logging.Logger
	cfg         *config.Config
	now         func() time.Time
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, hasher *cryptox.PasswordHasher,
	notifier Notifier, limiter Limiter, log logging.Logger, cfg *config.Config) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		notifier:    notifier,
		limiter:     limiter,
		log:         log.With("module", "account"),
		cfg:         cfg,
		now:         time.Now,
	}
}

// SignupInput carries the self-service registration form.
type SignupInput struct {
	Email    string
	Username string
	Password string
}

// ensureUnique rejects an email or username already used by another account.
func ensureUnique(ctx context.Context, repo users.Repository, email, username, excludeID string) error {
	if email != "" {
		taken, err := repo.EmailTaken(ctx, email, excludeID)
		if err != nil {
			return fmt.Errorf("error checking email: %w", err)
		}
		if taken {
			return common.BadRequest(msgEmailRegistered)
		}
	}
	if username != "" {
		taken, err := repo.UsernameTaken(ctx, username, excludeID)
		if err != nil {
			return fmt.Errorf("error checking username: %w", err)
		}
		if taken {
			return common.BadRequest(msgUsernameInUse)
		}
	}
	return nil
}

// createUser inserts u and maps a lost uniqueness race to the same message
// the pre-check would have produced.
func createUser(ctx context.Context, repo users.Repository, u *models.User) error {
	if _, err := repo.Create(ctx, u); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return common.BadRequest("Email or username already registered")
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

// Signup registers an unverified account and emails a verification link.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (user *models.User, err error) {
	ctx, span := startSpan(ctx, "AccountService.Signup")
	defer func() { endSpan(span, err) }()

	if !s.cfg.AllowSignup {
		return nil, common.Forbidden(msgSignupDisabled)
	}

	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	if err := CheckPassword(s.cfg.Password, in.Password); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	var raw string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if err := ensureUnique(ctx, repo, email, username, ""); err != nil {
			return err
		}

		user = &models.User{
			Email:        email,
			Username:     username,
			PasswordHash: digest,
			IsActive:     true,
		}
		if err := createUser(ctx, repo, user); err != nil {
			return err
		}

		raw, err = issueToken(ctx, s.repomanager.EmailVerifications(tx), user.ID, s.cfg.EmailVerificationTTL, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.VerificationEmail(ctx, user.Email, verifyEmailFlow.link(s.cfg.FrontendURL(), raw))
	s.log.Info(ctx, "user signed up", "user_id", user.ID)
	return user, nil
}

// VerifyEmail redeems a verification token and marks its owner verified.
func (s *AccountService) VerifyEmail(ctx context.Context, raw string) (msg string, err error) {
	ctx, span := startSpan(ctx, "AccountService.VerifyEmail")
	defer func() { endSpan(span, err) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		t, err := redeemToken(ctx, s.repomanager.EmailVerifications(tx), verifyEmailFlow, raw, s.now())
		if err != nil {
			return err
		}

		repo := s.repomanager.Users(tx)
		user, err := repo.GetByID(ctx, t.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.BadRequest(verifyEmailFlow.msgInvalid)
			}
			return fmt.Errorf("error loading user: %w", err)
		}

		if user.IsVerified {
			return nil
		}
		user.IsVerified = true
		if err := repo.Update(ctx, user); err != nil {
			return fmt.Errorf("error updating user: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return msgEmailVerified, nil
}

// allowed consults the limiter. Limiter failures let the request through.
func (s *AccountService) allowed(ctx context.Context, key string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.log.Warn(ctx, "rate limiter unavailable", "error", err)
		return true
	}
	if !ok {
		s.log.Info(ctx, "request throttled", "key", key)
	}
	return ok
}

// ResendVerification issues a fresh verification link for an existing
// unverified account. The reply is the same whether or not one exists.
func (s *AccountService) ResendVerification(ctx context.Context, emailOrUsername string) (msg string, err error) {
	ctx, span := startSpan(ctx, "AccountService.ResendVerification")
	defer func() { endSpan(span, err) }()

	identifier := strings.ToLower(strings.TrimSpace(emailOrUsername))
	if identifier == "" || !s.allowed(ctx, "verify:"+identifier) {
		return msgVerificationSent, nil
	}

	var (
		user *models.User
		raw  string
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err = findByIdentifier(ctx, s.repomanager.Users(tx), identifier)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				user = nil
				return nil
			}
			return fmt.Errorf("error looking up user: %w", err)
		}
		if user.IsVerified {
			user = nil
			return nil
		}

		raw, err = issueToken(ctx, s.repomanager.EmailVerifications(tx), user.ID, s.cfg.EmailVerificationTTL, s.now())
		return err
	})
	if err != nil {
		return "", err
	}

	if user != nil {
		s.notifier.VerificationEmail(ctx, user.Email, verifyEmailFlow.link(s.cfg.FrontendURL(), raw))
	}
	return msgVerificationSent, nil
}
