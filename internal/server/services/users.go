package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
)

// ProfileUpdate holds the optional fields of a self-service profile edit.
type ProfileUpdate struct {
	Email    *string
	Username *string
}

// ListUsers returns accounts newest first.
func (s *AccountService) ListUsers(ctx context.Context, includeInactive bool) (list []*models.User, err error) {
	ctx, span := startSpan(ctx, "AccountService.ListUsers")
	defer func() { endSpan(span, err) }()

	list, err = s.repomanager.Users(s.db).List(ctx, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return list, nil
}

// UpdateProfile changes the username and/or email of user. A new email
// address must be verified again: the account is marked unverified, its
// sessions are revoked and a verification link is sent to the new address.
func (s *AccountService) UpdateProfile(ctx context.Context, user *models.User, in ProfileUpdate) (updated *models.User, err error) {
	ctx, span := startSpan(ctx, "AccountService.UpdateProfile")
	defer func() { endSpan(span, err) }()

	var username, email string
	if in.Username != nil {
		if u := strings.TrimSpace(*in.Username); u != "" && !strings.EqualFold(u, user.Username) {
			username = u
		}
	}
	if in.Email != nil {
		if e := normalizeEmail(*in.Email); e != normalizeEmail(user.Email) {
			email = e
		}
	}

	if username == "" && email == "" {
		return user, nil
	}

	next := *user
	var raw string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if err := ensureUnique(ctx, repo, email, username, user.ID); err != nil {
			return err
		}

		if username != "" {
			next.Username = username
		}
		if email != "" {
			next.Email = email
			next.IsVerified = false
		}

		if err := repo.Update(ctx, &next); err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return common.BadRequest("Email or username already registered")
			}
			return fmt.Errorf("error updating user: %w", err)
		}

		if email == "" {
			return nil
		}

		if err := revokeSessions(ctx, repo, &next); err != nil {
			return err
		}
		now := s.now()
		err := revokeTokens(ctx, next.ID, now, s.repomanager.EmailVerifications(tx), s.repomanager.PasswordResets(tx))
		if err != nil {
			return err
		}
		raw, err = issueToken(ctx, s.repomanager.EmailVerifications(tx), next.ID, s.cfg.EmailVerificationTTL, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if raw != "" {
		s.notifier.VerificationEmail(ctx, next.Email, verifyEmailFlow.link(s.cfg.FrontendURL(), raw))
	}
	return &next, nil
}

// SetActive activates or deactivates the account targetID on behalf of
// admin. Deactivation revokes the target's sessions; admins cannot
// deactivate themselves.
func (s *AccountService) SetActive(ctx context.Context, admin *models.User, targetID string, active bool) (target *models.User, err error) {
	ctx, span := startSpan(ctx, "AccountService.SetActive")
	defer func() { endSpan(span, err) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		target, err = repo.GetByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.NotFound(msgUserNotFound)
			}
			return fmt.Errorf("error loading user: %w", err)
		}

		if target.ID == admin.ID && !active {
			return common.BadRequest(msgCannotDeactivate)
		}

		if target.IsActive == active {
			return nil
		}

		target.IsActive = active
		if err := repo.Update(ctx, target); err != nil {
			return fmt.Errorf("error updating user: %w", err)
		}
		if !active {
			return revokeSessions(ctx, repo, target)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user status changed", "user_id", targetID, "active", active, "by", admin.ID)
	return target, nil
}
