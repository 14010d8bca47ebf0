package tokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T, table Table) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db, table), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, EmailVerifications)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+email_verifications\s*\(id,\s*user_id,\s*token_hash,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+created_at$`

	exp := time.Now().Add(time.Hour)
	created := time.Now()
	mock.ExpectQuery(q).
		WithArgs(sqlmock.AnyArg(), "u1", "digest", exp).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	tok := &models.SingleUseToken{UserID: "u1", TokenHash: "digest", ExpiresAt: exp}
	if err := repo.Create(context.Background(), tok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.ID == "" || !tok.CreatedAt.Equal(created) {
		t.Fatalf("row not populated: %+v", tok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_TableSelection(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, PasswordResets)
	defer db.Close()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+password_resets\b`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	if err := repo.Create(context.Background(), &models.SingleUseToken{ID: "t1", UserID: "u1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreate_Errors(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, EmailVerifications)
	defer db.Close()

	mock.ExpectQuery(`INSERT`).WillReturnError(&pgconn.PgError{Code: "23505"})
	if err := repo.Create(context.Background(), &models.SingleUseToken{}); !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}

	mock.ExpectQuery(`INSERT`).WillReturnError(errors.New("boom"))
	err := repo.Create(context.Background(), &models.SingleUseToken{})
	if err == nil || !regexp.MustCompile(`db error: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByHash_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, PasswordResets)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*user_id,\s*token_hash,\s*expires_at,\s*used_at,\s*created_at\s+FROM\s+password_resets\s+WHERE\s+token_hash\s*=\s*\$1$`

	exp := time.Now().Add(2 * time.Hour)
	used := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}).
		AddRow("t1", "u1", "digest", exp, used, time.Now())
	mock.ExpectQuery(q).WithArgs("digest").WillReturnRows(rows)

	got, err := repo.FindByHash(context.Background(), "digest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "t1" || got.UserID != "u1" || !got.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected row: %+v", got)
	}
	if !got.Used() || !got.UsedAt.Equal(used) {
		t.Fatalf("used_at not scanned: %+v", got.UsedAt)
	}
}

func TestFindByHash_Unused(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, EmailVerifications)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}).
		AddRow("t1", "u1", "digest", time.Now(), nil, time.Now())
	mock.ExpectQuery(`FROM\s+email_verifications`).WithArgs("digest").WillReturnRows(rows)

	got, err := repo.FindByHash(context.Background(), "digest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Used() {
		t.Fatalf("token should be unused")
	}
}

func TestFindByHash_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, EmailVerifications)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	if _, err := repo.FindByHash(context.Background(), "nope"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFindByHash_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, EmailVerifications)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("x").WillReturnError(errors.New("db down"))

	_, err := repo.FindByHash(context.Background(), "x")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestMarkUsed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, PasswordResets)
	defer db.Close()

	q := `(?s)^UPDATE\s+password_resets\s+SET\s+used_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+used_at\s+IS\s+NULL$`
	at := time.Now()

	mock.ExpectExec(q).WithArgs("t1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	won, err := repo.MarkUsed(context.Background(), "t1", at)
	if err != nil || !won {
		t.Fatalf("first MarkUsed = %v, %v", won, err)
	}

	mock.ExpectExec(q).WithArgs("t1", at).WillReturnResult(sqlmock.NewResult(0, 0))
	won, err = repo.MarkUsed(context.Background(), "t1", at)
	if err != nil || won {
		t.Fatalf("second MarkUsed = %v, %v", won, err)
	}

	mock.ExpectExec(q).WillReturnError(errors.New("boom"))
	if _, err := repo.MarkUsed(context.Background(), "t1", at); err == nil {
		t.Fatalf("expected error")
	}
}

func TestInvalidateForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, EmailVerifications)
	defer db.Close()

	q := `(?s)^UPDATE\s+email_verifications\s+SET\s+used_at\s*=\s*\$2\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+used_at\s+IS\s+NULL$`
	at := time.Now()

	mock.ExpectExec(q).WithArgs("u1", at).WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := repo.InvalidateForUser(context.Background(), "u1", at)
	if err != nil || n != 2 {
		t.Fatalf("InvalidateForUser = %d, %v", n, err)
	}

	mock.ExpectExec(q).WithArgs("u1", at).WillReturnResult(sqlmock.NewResult(0, 0))
	n, err = repo.InvalidateForUser(context.Background(), "u1", at)
	if err != nil || n != 0 {
		t.Fatalf("second InvalidateForUser = %d, %v", n, err)
	}

	mock.ExpectExec(q).WillReturnError(errors.New("boom"))
	if _, err := repo.InvalidateForUser(context.Background(), "u1", at); err == nil {
		t.Fatalf("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
