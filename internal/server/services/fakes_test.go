package services

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/cryptox"
	"github.com/dmitrijs2005/tinyauth/internal/dbx"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/invites"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectCommit(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

func expectRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	return cfg
}

var testHasher = cryptox.NewPasswordHasher(bcrypt.MinCost)

const goodPassword = "Abcd1234!"

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	d, err := testHasher.Hash(plain)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return d
}

// --- users ---

type fakeUsersRepo struct {
	mu   sync.Mutex
	rows map[string]*models.User
	seq  int

	err        error
	loseRotate bool
}

var _ users.Repository = (*fakeUsersRepo)(nil)

func newFakeUsers(list ...*models.User) *fakeUsersRepo {
	f := &fakeUsersRepo{rows: map[string]*models.User{}}
	for _, u := range list {
		c := *u
		f.rows[u.ID] = &c
	}
	return f
}

func (f *fakeUsersRepo) get(id string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.rows[id]; ok {
		c := *u
		return &c
	}
	return nil
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if u.ID == "" {
		f.seq++
		u.ID = "new-" + string(rune('0'+f.seq))
	}
	u.CreatedAt = time.Now()
	c := *u
	f.rows[u.ID] = &c
	return u, nil
}

func (f *fakeUsersRepo) find(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.rows {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return strings.EqualFold(u.Username, username) })
}

func (f *fakeUsersRepo) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	_, err := f.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) && u.ID != excludeID })
	if err == common.ErrorNotFound {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeUsersRepo) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	_, err := f.find(func(u *models.User) bool { return strings.EqualFold(u.Username, username) && u.ID != excludeID })
	if err == common.ErrorNotFound {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeUsersRepo) List(ctx context.Context, includeInactive bool) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []*models.User{}
	for _, u := range f.rows {
		if includeInactive || u.IsActive {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeUsersRepo) Update(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cur, ok := f.rows[u.ID]
	if !ok {
		return common.ErrorNotFound
	}
	c := *u
	c.RefreshTokenHash = cur.RefreshTokenHash
	c.TokenVersion = cur.TokenVersion
	f.rows[u.ID] = &c
	return nil
}

func (f *fakeUsersRepo) SetRefreshTokenHash(ctx context.Context, id string, hash *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u, ok := f.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.RefreshTokenHash = hash
	return nil
}

func (f *fakeUsersRepo) RotateRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	u, ok := f.rows[id]
	if !ok || f.loseRotate || u.RefreshTokenHash == nil || *u.RefreshTokenHash != oldHash {
		return false, nil
	}
	u.RefreshTokenHash = &newHash
	return true, nil
}

func (f *fakeUsersRepo) RevokeSessions(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	u, ok := f.rows[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	u.RefreshTokenHash = nil
	u.TokenVersion++
	return u.TokenVersion, nil
}

// --- single-use tokens ---

type fakeTokensRepo struct {
	mu     sync.Mutex
	byHash map[string]*models.SingleUseToken
	err    error
}

var _ tokens.Repository = (*fakeTokensRepo)(nil)

func newFakeTokens() *fakeTokensRepo {
	return &fakeTokensRepo{byHash: map[string]*models.SingleUseToken{}}
}

// put stores a token for raw and returns it.
func (f *fakeTokensRepo) put(raw, userID string, expiresAt time.Time, used bool) *models.SingleUseToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &models.SingleUseToken{ID: "t-" + userID, UserID: userID, TokenHash: cryptox.HashOpaque(raw), ExpiresAt: expiresAt}
	if used {
		at := expiresAt.Add(-time.Minute)
		t.UsedAt = &at
	}
	f.byHash[t.TokenHash] = t
	return t
}

func (f *fakeTokensRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byHash)
}

func (f *fakeTokensRepo) Create(ctx context.Context, t *models.SingleUseToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if t.ID == "" {
		t.ID = "t-" + t.TokenHash[:8]
	}
	c := *t
	f.byHash[t.TokenHash] = &c
	return nil
}

func (f *fakeTokensRepo) FindByHash(ctx context.Context, hash string) (*models.SingleUseToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.byHash[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeTokensRepo) InvalidateForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, t := range f.byHash {
		if t.UserID == userID && t.UsedAt == nil {
			stamp := at
			t.UsedAt = &stamp
			n++
		}
	}
	return n, nil
}

func (f *fakeTokensRepo) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, t := range f.byHash {
		if t.ID == id {
			if t.UsedAt != nil {
				return false, nil
			}
			t.UsedAt = &at
			return true, nil
		}
	}
	return false, nil
}

// --- invites ---

type fakeInvitesRepo struct {
	mu      sync.Mutex
	byEmail map[string]*models.Invite
	err     error
}

var _ invites.Repository = (*fakeInvitesRepo)(nil)

func newFakeInvites() *fakeInvitesRepo {
	return &fakeInvitesRepo{byEmail: map[string]*models.Invite{}}
}

func (f *fakeInvitesRepo) put(raw, email string, expiresAt time.Time, accepted bool) *models.Invite {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := &models.Invite{ID: "inv-" + email, Email: email, TokenHash: cryptox.HashOpaque(raw), ExpiresAt: expiresAt}
	if accepted {
		at := time.Now()
		uid := "someone"
		inv.AcceptedAt = &at
		inv.AcceptedUserID = &uid
	}
	f.byEmail[strings.ToLower(email)] = inv
	return inv
}

func (f *fakeInvitesRepo) get(email string) *models.Invite {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.byEmail[strings.ToLower(email)]; ok {
		c := *inv
		return &c
	}
	return nil
}

func (f *fakeInvitesRepo) FindByEmail(ctx context.Context, email string) (*models.Invite, error) {
	if f.err != nil {
		return nil, f.err
	}
	if inv := f.get(email); inv != nil {
		return inv, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeInvitesRepo) FindByHash(ctx context.Context, hash string) (*models.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, inv := range f.byEmail {
		if inv.TokenHash == hash {
			c := *inv
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeInvitesRepo) Upsert(ctx context.Context, inv *models.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	key := strings.ToLower(inv.Email)
	if cur, ok := f.byEmail[key]; ok {
		if cur.AcceptedAt != nil {
			return common.ErrorConflict
		}
		inv.ID = cur.ID
	} else if inv.ID == "" {
		inv.ID = "inv-" + key
	}
	c := *inv
	f.byEmail[key] = &c
	return nil
}

func (f *fakeInvitesRepo) MarkAccepted(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, inv := range f.byEmail {
		if inv.ID == id {
			if inv.AcceptedAt != nil {
				return false, nil
			}
			inv.AcceptedAt = &at
			inv.AcceptedUserID = &userID
			return true, nil
		}
	}
	return false, nil
}

// --- manager ---

type fakeRepoManager struct {
	u  *fakeUsersRepo
	ev *fakeTokensRepo
	pr *fakeTokensRepo
	in *fakeInvitesRepo
}

func newFakeManager(list ...*models.User) *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsers(list...), ev: newFakeTokens(), pr: newFakeTokens(), in: newFakeInvites()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error     { return nil }
func (m *fakeRepoManager) RollbackMigration(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository               { return m.u }
func (m *fakeRepoManager) EmailVerifications(db dbx.DBTX) tokens.Repository { return m.ev }
func (m *fakeRepoManager) PasswordResets(db dbx.DBTX) tokens.Repository     { return m.pr }
func (m *fakeRepoManager) Invites(db dbx.DBTX) invites.Repository           { return m.in }

// --- notifier / limiter ---

type sentEmail struct {
	kind, to, link, invitedBy string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (n *fakeNotifier) add(e sentEmail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, e)
}

func (n *fakeNotifier) VerificationEmail(ctx context.Context, to, link string) {
	n.add(sentEmail{kind: "verify", to: to, link: link})
}

func (n *fakeNotifier) InviteEmail(ctx context.Context, to, link, invitedBy string) {
	n.add(sentEmail{kind: "invite", to: to, link: link, invitedBy: invitedBy})
}

func (n *fakeNotifier) PasswordResetEmail(ctx context.Context, to, link string) {
	n.add(sentEmail{kind: "reset", to: to, link: link})
}

func (n *fakeNotifier) all() []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEmail(nil), n.sent...)
}

// tokenFromLink extracts the raw token from an emailed link.
func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	_, raw, ok := strings.Cut(link, "?token=")
	if !ok {
		t.Fatalf("no token in link %q", link)
	}
	return raw
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}
