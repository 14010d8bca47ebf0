package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/cryptox"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/tinyauth/internal/timex"
)

// flow describes one single-use token purpose: where its link points and
// how redemption failures are worded.
type flow struct {
	purpose    models.Purpose
	path       string
	msgInvalid string
	msgUsed    string
	msgExpired string
}

var (
	verifyEmailFlow = flow{
		purpose:    models.PurposeVerifyEmail,
		path:       "/verify",
		msgInvalid: "Invalid verification token",
		msgUsed:    "Verification token already used",
		msgExpired: "Verification token expired",
	}
	passwordResetFlow = flow{
		purpose:    models.PurposePasswordReset,
		path:       "/auth/reset",
		msgInvalid: "Invalid or unknown reset token",
		msgUsed:    "Reset token already used",
		msgExpired: "Reset token expired",
	}
	inviteFlow = flow{
		purpose:    models.PurposeInvite,
		path:       "/invite/accept",
		msgInvalid: "Invalid invitation token",
		msgUsed:    "Invitation already accepted",
		msgExpired: "Invitation expired",
	}
)

// link builds the frontend URL carrying the raw token.
func (f flow) link(frontend, raw string) string {
	return strings.TrimRight(frontend, "/") + f.path + "?token=" + url.QueryEscape(raw)
}

// issueToken stores a fresh token for userID and returns its raw value,
// which is never persisted.
func issueToken(ctx context.Context, repo tokens.Repository, userID string, ttl time.Duration, now time.Time) (string, error) {
	raw, hash, err := cryptox.NewOpaqueToken(cryptox.DefaultTokenBytes)
	if err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}

	err = repo.Create(ctx, &models.SingleUseToken{
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: now.Add(ttl).UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("error storing token: %w", err)
	}
	return raw, nil
}

// revokeTokens consumes every outstanding token of userID in the given
// stores, so links mailed before a credential change stop working.
func revokeTokens(ctx context.Context, userID string, now time.Time, repos ...tokens.Repository) error {
	for _, repo := range repos {
		if _, err := repo.InvalidateForUser(ctx, userID, now); err != nil {
			return fmt.Errorf("error invalidating tokens: %w", err)
		}
	}
	return nil
}

// redeemToken consumes raw. It fails with BadRequest when the token is
// unknown, already used or expired (expires_at == now counts as expired).
// The used_at stamp is a compare-and-swap, so concurrent redemptions of the
// same token succeed at most once.
func redeemToken(ctx context.Context, repo tokens.Repository, f flow, raw string, now time.Time) (*models.SingleUseToken, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, common.BadRequest(f.msgInvalid)
	}

	t, err := repo.FindByHash(ctx, cryptox.HashOpaque(raw))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.BadRequest(f.msgInvalid)
		}
		return nil, fmt.Errorf("error loading token: %w", err)
	}

	if t.Used() {
		return nil, common.BadRequest(f.msgUsed)
	}
	if timex.Expired(t.ExpiresAt, now) {
		return nil, common.BadRequest(f.msgExpired)
	}

	won, err := repo.MarkUsed(ctx, t.ID, now)
	if err != nil {
		return nil, fmt.Errorf("error consuming token: %w", err)
	}
	if !won {
		return nil, common.BadRequest(f.msgUsed)
	}

	usedAt := now
	t.UsedAt = &usedAt
	return t, nil
}
