package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
)

// RequestPasswordReset emails a reset link to an active account with the
// given address. The reply never reveals whether such an account exists.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (msg string, err error) {
	ctx, span := startSpan(ctx, "AccountService.RequestPasswordReset")
	defer func() { endSpan(span, err) }()

	email = normalizeEmail(email)
	if email == "" || !s.allowed(ctx, "reset:"+email) {
		return msgResetRequested, nil
	}

	var (
		user *models.User
		raw  string
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err = s.repomanager.Users(tx).GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				user = nil
				return nil
			}
			return fmt.Errorf("error looking up user: %w", err)
		}
		if !user.IsActive {
			user = nil
			return nil
		}

		raw, err = issueToken(ctx, s.repomanager.PasswordResets(tx), user.ID, s.cfg.PasswordResetTTL, s.now())
		return err
	})
	if err != nil {
		return "", err
	}

	if user != nil {
		s.notifier.PasswordResetEmail(ctx, user.Email, passwordResetFlow.link(s.cfg.FrontendURL(), raw))
	}
	return msgResetRequested, nil
}

// ConfirmPasswordReset redeems a reset token, sets the new password and
// revokes every session of the account.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, raw, newPassword string) (msg string, err error) {
	ctx, span := startSpan(ctx, "AccountService.ConfirmPasswordReset")
	defer func() { endSpan(span, err) }()

	if err := CheckPassword(s.cfg.Password, newPassword); err != nil {
		return "", err
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := s.now()
		resets := s.repomanager.PasswordResets(tx)
		t, err := redeemToken(ctx, resets, passwordResetFlow, raw, now)
		if err != nil {
			return err
		}

		repo := s.repomanager.Users(tx)
		user, err := repo.GetByID(ctx, t.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.BadRequest(passwordResetFlow.msgInvalid)
			}
			return fmt.Errorf("error loading user: %w", err)
		}

		user.PasswordHash = digest
		if err := repo.Update(ctx, user); err != nil {
			return fmt.Errorf("error updating user: %w", err)
		}
		if err := revokeTokens(ctx, user.ID, now, resets); err != nil {
			return err
		}
		return revokeSessions(ctx, repo, user)
	})
	if err != nil {
		return "", err
	}
	return msgPasswordReset, nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one, then signs the user out everywhere.
func (s *AccountService) ChangePassword(ctx context.Context, user *models.User, current, next string) (msg string, err error) {
	ctx, span := startSpan(ctx, "AccountService.ChangePassword")
	defer func() { endSpan(span, err) }()

	if !s.hasher.Verify(current, user.PasswordHash) {
		return "", common.BadRequest(msgCurrentPassword)
	}
	if err := CheckPassword(s.cfg.Password, next); err != nil {
		return "", err
	}

	digest, err := s.hasher.Hash(next)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		user.PasswordHash = digest
		if err := repo.Update(ctx, user); err != nil {
			return fmt.Errorf("error updating user: %w", err)
		}
		if err := revokeTokens(ctx, user.ID, s.now(), s.repomanager.PasswordResets(tx)); err != nil {
			return err
		}
		return revokeSessions(ctx, repo, user)
	})
	if err != nil {
		return "", err
	}

	s.log.Info(ctx, "password changed", "user_id", user.ID)
	return msgPasswordUpdated, nil
}
