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
	"github.com/dmitrijs2005/tinyauth/internal/timex"
)

const (
	msgInviteNotFound   = "Invitation not found"
	msgNotAdministrator = "Insufficient permissions"
	defaultInviter      = "A teammate"
)

// InviteDetail is the public view of an invitation.
type InviteDetail struct {
	Email     string
	ExpiresAt time.Time
	Accepted  bool
}

// AcceptInviteInput carries the account details chosen by the invitee.
type AcceptInviteInput struct {
	Token    string
	Username string
	Password string
}

// InviteService issues and redeems admin invitations.
type InviteService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.PasswordHasher
	notifier    Notifier
	log         logging.Logger
	cfg         *config.Config
	now         func() time.Time
}

func NewInviteService(db *sql.DB, m repomanager.RepositoryManager, hasher *cryptox.PasswordHasher,
	notifier Notifier, log logging.Logger, cfg *config.Config) *InviteService {
	return &InviteService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		notifier:    notifier,
		log:         log.With("module", "invites"),
		cfg:         cfg,
		now:         time.Now,
	}
}

// inviterName is how the invite email refers to the admin.
func inviterName(admin *models.User) string {
	if admin == nil {
		return defaultInviter
	}
	if admin.Username != "" {
		return admin.Username
	}
	if admin.Email != "" {
		return admin.Email
	}
	return defaultInviter
}

// Issue invites email on behalf of admin. An open invite for the same
// address is re-armed with a new token and expiry instead of duplicated.
func (s *InviteService) Issue(ctx context.Context, admin *models.User, email string) (invite *models.Invite, err error) {
	ctx, span := startSpan(ctx, "InviteService.Issue")
	defer func() { endSpan(span, err) }()

	if admin == nil || !admin.IsAdmin {
		return nil, common.Forbidden(msgNotAdministrator)
	}

	email = normalizeEmail(email)

	raw, hash, err := cryptox.NewOpaqueToken(cryptox.DefaultTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		taken, err := s.repomanager.Users(tx).EmailTaken(ctx, email, "")
		if err != nil {
			return fmt.Errorf("error checking email: %w", err)
		}
		if taken {
			return common.BadRequest(msgEmailRegistered)
		}

		repo := s.repomanager.Invites(tx)

		existing, err := repo.FindByEmail(ctx, email)
		switch {
		case err == nil && existing.Accepted():
			return common.BadRequest(inviteFlow.msgUsed)
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return fmt.Errorf("error loading invite: %w", err)
		}

		invitedBy := admin.ID
		invite = &models.Invite{
			Email:           email,
			TokenHash:       hash,
			ExpiresAt:       s.now().Add(s.cfg.InviteTTL).UTC(),
			InvitedByUserID: &invitedBy,
		}
		if err := repo.Upsert(ctx, invite); err != nil {
			if errors.Is(err, common.ErrorConflict) {
				return common.BadRequest(inviteFlow.msgUsed)
			}
			return fmt.Errorf("error saving invite: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.InviteEmail(ctx, invite.Email, inviteFlow.link(s.cfg.FrontendURL(), raw), inviterName(admin))
	s.log.Info(ctx, "invite issued", "invite_id", invite.ID, "by", admin.ID)
	return invite, nil
}

// Detail describes the invite behind raw. Unknown tokens are NotFound and
// expired open invites are Gone.
func (s *InviteService) Detail(ctx context.Context, raw string) (detail *InviteDetail, err error) {
	ctx, span := startSpan(ctx, "InviteService.Detail")
	defer func() { endSpan(span, err) }()

	invite, err := s.repomanager.Invites(s.db).FindByHash(ctx, cryptox.HashOpaque(raw))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound(msgInviteNotFound)
		}
		return nil, fmt.Errorf("error loading invite: %w", err)
	}

	if !invite.Accepted() && timex.Expired(invite.ExpiresAt, s.now()) {
		return nil, common.Gone(inviteFlow.msgExpired)
	}

	return &InviteDetail{
		Email:     invite.Email,
		ExpiresAt: timex.UTC(invite.ExpiresAt),
		Accepted:  invite.Accepted(),
	}, nil
}

// Accept redeems an invite, creating a verified, active, non-admin account
// for the invited address.
func (s *InviteService) Accept(ctx context.Context, in AcceptInviteInput) (user *models.User, err error) {
	ctx, span := startSpan(ctx, "InviteService.Accept")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(in.Token) == "" {
		return nil, common.BadRequest(inviteFlow.msgInvalid)
	}
	if err := CheckPassword(s.cfg.Password, in.Password); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	now := s.now()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		invites := s.repomanager.Invites(tx)

		invite, err := invites.FindByHash(ctx, cryptox.HashOpaque(in.Token))
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.BadRequest(inviteFlow.msgInvalid)
			}
			return fmt.Errorf("error loading invite: %w", err)
		}
		if invite.Accepted() {
			return common.BadRequest(inviteFlow.msgUsed)
		}
		if timex.Expired(invite.ExpiresAt, now) {
			return common.BadRequest(inviteFlow.msgExpired)
		}

		repo := s.repomanager.Users(tx)
		email := normalizeEmail(invite.Email)
		if err := ensureUnique(ctx, repo, email, username, ""); err != nil {
			return err
		}

		digest, err := s.hasher.Hash(in.Password)
		if err != nil {
			return fmt.Errorf("error hashing password: %w", err)
		}

		user = &models.User{
			Email:        email,
			Username:     username,
			PasswordHash: digest,
			IsActive:     true,
			IsVerified:   true,
		}
		if err := createUser(ctx, repo, user); err != nil {
			return err
		}

		won, err := invites.MarkAccepted(ctx, invite.ID, user.ID, now)
		if err != nil {
			return fmt.Errorf("error accepting invite: %w", err)
		}
		if !won {
			return common.BadRequest(inviteFlow.msgUsed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "invite accepted", "user_id", user.ID)
	return user, nil
}
