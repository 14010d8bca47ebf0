package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/logging"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type accountFixture struct {
	svc      *AccountService
	m        *fakeRepoManager
	notifier *fakeNotifier
	limiter  *fakeLimiter
	cfg      *config.Config
	expect   func(commit bool)
}

func newAccountFixture(t *testing.T, list ...*models.User) *accountFixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	f := &accountFixture{
		m:        newFakeManager(list...),
		notifier: &fakeNotifier{},
		limiter:  &fakeLimiter{allow: true},
		cfg:      testConfig(),
	}
	f.svc = NewAccountService(db, f.m, testHasher, f.notifier, f.limiter, logging.Nop(), f.cfg)
	f.svc.now = func() time.Time { return fixedNow }
	f.expect = func(commit bool) {
		if commit {
			expectCommit(mock)
		} else {
			expectRollback(mock)
		}
	}
	return f
}

func TestAccountService_Signup_Disabled(t *testing.T) {
	f := newAccountFixture(t)
	f.cfg.AllowSignup = false

	_, err := f.svc.Signup(context.Background(), SignupInput{Email: "a@example.com", Username: "a", Password: goodPassword})
	assertKind(t, err, common.ErrorForbidden, msgSignupDisabled)
	assert.Empty(t, f.notifier.all())
}

func TestAccountService_Signup_CreatesUnverifiedAndSendsLink(t *testing.T) {
	f := newAccountFixture(t)
	f.expect(true)

	u, err := f.svc.Signup(context.Background(), SignupInput{
		Email:    "  Bob@Example.com ",
		Username: " bob ",
		Password: goodPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", u.Email)
	assert.Equal(t, "bob", u.Username)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsVerified)
	assert.False(t, u.IsAdmin)
	assert.NotEqual(t, goodPassword, u.PasswordHash)
	assert.True(t, testHasher.Verify(goodPassword, u.PasswordHash))

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "verify", sent[0].kind)
	assert.Equal(t, "bob@example.com", sent[0].to)
	assert.True(t, strings.HasPrefix(sent[0].link, "http://localhost:3000/verify?token="), sent[0].link)
	assert.Equal(t, 1, f.m.ev.count())
}

func TestAccountService_Signup_Rejections(t *testing.T) {
	existing := aliceUser(t)

	tests := []struct {
		name string
		in   SignupInput
		msg  string
		tx   bool
	}{
		{"weak password", SignupInput{Email: "x@example.com", Username: "x", Password: "short"},
			"Password must contain at least 8 characters, an uppercase letter, a digit", false},
		{"email taken", SignupInput{Email: "ALICE@example.com", Username: "other", Password: goodPassword}, msgEmailRegistered, true},
		{"username taken", SignupInput{Email: "new@example.com", Username: "Alice", Password: goodPassword}, msgUsernameInUse, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAccountFixture(t, existing)
			if tt.tx {
				f.expect(false)
			}

			_, err := f.svc.Signup(context.Background(), tt.in)
			assertKind(t, err, common.ErrorBadRequest, tt.msg)
			assert.Empty(t, f.notifier.all())
			assert.Equal(t, 0, f.m.ev.count())
		})
	}
}

func TestAccountService_Signup_CreateRaceMapsToBadRequest(t *testing.T) {
	f := newAccountFixture(t)
	f.expect(false)

	// the pre-check passes but the insert hits the unique index
	racing := &raceUsersRepo{fakeUsersRepo: f.m.u}
	mgr := &raceManager{fakeRepoManager: f.m, users: racing}
	f.svc.repomanager = mgr

	_, err := f.svc.Signup(context.Background(), SignupInput{Email: "r@example.com", Username: "r", Password: goodPassword})
	assertKind(t, err, common.ErrorBadRequest, "Email or username already registered")
}

func TestAccountService_VerifyEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		u := aliceUser(t)
		u.IsVerified = false
		f := newAccountFixture(t, u)
		f.m.ev.put("tok", "u1", fixedNow.Add(time.Hour), false)

		f.expect(true)
		msg, err := f.svc.VerifyEmail(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, msgEmailVerified, msg)
		assert.True(t, f.m.u.get("u1").IsVerified)

		f.expect(false)
		_, err = f.svc.VerifyEmail(ctx, "tok")
		assertKind(t, err, common.ErrorBadRequest, "Verification token already used")
	})

	t.Run("expires exactly now", func(t *testing.T) {
		u := aliceUser(t)
		u.IsVerified = false
		f := newAccountFixture(t, u)
		f.m.ev.put("tok", "u1", fixedNow, false)

		f.expect(false)
		_, err := f.svc.VerifyEmail(ctx, "tok")
		assertKind(t, err, common.ErrorBadRequest, "Verification token expired")
		assert.False(t, f.m.u.get("u1").IsVerified)
	})

	t.Run("unknown", func(t *testing.T) {
		f := newAccountFixture(t)
		f.expect(false)
		_, err := f.svc.VerifyEmail(ctx, "nope")
		assertKind(t, err, common.ErrorBadRequest, "Invalid verification token")
	})

	t.Run("blank", func(t *testing.T) {
		f := newAccountFixture(t)
		f.expect(false)
		_, err := f.svc.VerifyEmail(ctx, "  ")
		assertKind(t, err, common.ErrorBadRequest, "Invalid verification token")
	})
}

func TestAccountService_ResendVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("unverified user gets a new link", func(t *testing.T) {
		u := aliceUser(t)
		u.IsVerified = false
		f := newAccountFixture(t, u)
		f.expect(true)

		msg, err := f.svc.ResendVerification(ctx, " Alice ")
		require.NoError(t, err)
		assert.Equal(t, msgVerificationSent, msg)
		assert.Equal(t, []string{"verify:alice"}, f.limiter.keys)
		require.Len(t, f.notifier.all(), 1)
	})

	t.Run("verified and unknown users look the same", func(t *testing.T) {
		f := newAccountFixture(t, aliceUser(t))
		f.expect(true)
		f.expect(true)

		m1, err := f.svc.ResendVerification(ctx, "alice@example.com")
		require.NoError(t, err)
		m2, err := f.svc.ResendVerification(ctx, "ghost@example.com")
		require.NoError(t, err)
		assert.Equal(t, m1, m2)
		assert.Empty(t, f.notifier.all())
	})

	t.Run("throttled", func(t *testing.T) {
		u := aliceUser(t)
		u.IsVerified = false
		f := newAccountFixture(t, u)
		f.limiter.allow = false

		msg, err := f.svc.ResendVerification(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, msgVerificationSent, msg)
		assert.Empty(t, f.notifier.all())
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		u := aliceUser(t)
		u.IsVerified = false
		f := newAccountFixture(t, u)
		f.limiter.err = errBoom{}
		f.expect(true)

		_, err := f.svc.ResendVerification(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, f.notifier.all(), 1)
	})
}

// raceUsersRepo reports free names but fails the insert on the unique index.
type raceUsersRepo struct {
	*fakeUsersRepo
}

func (r *raceUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	return nil, common.ErrorAlreadyExists
}

type raceManager struct {
	*fakeRepoManager
	users *raceUsersRepo
}

func (m *raceManager) Users(db dbx.DBTX) users.Repository { return m.users }
