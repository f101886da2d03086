package tokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

var tokenColumns = []string{"id", "account_id", "created_at", "expires_at", "verified", "invalidated"}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	expires := created.Add(24 * time.Hour)

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+verification_tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*FALSE,\s*FALSE\)\s*$`).
		WithArgs("tok-1", "acc-1", created, expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.VerificationToken{
		ID: "tok-1", AccountID: "acc-1", CreatedAt: created, ExpiresAt: expires,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`INSERT\s+INTO\s+verification_tokens`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.VerificationToken{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestGetForUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	q := `(?s)^\s*SELECT\s+id,\s*account_id.*FROM\s+verification_tokens\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE\s*$`

	mock.ExpectQuery(q).WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow("tok-1", "acc-1", now, now.Add(time.Hour), false, true))
	mock.ExpectQuery(q).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	got, err := repo.GetForUpdate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.True(t, got.Invalidated)
	assert.False(t, got.Verified)

	_, err = repo.GetForUpdate(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestInvalidateLive(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)^\s*UPDATE\s+verification_tokens\s+SET\s+invalidated\s*=\s*TRUE\s+WHERE\s+account_id\s*=\s*\$1\s+AND\s+NOT\s+verified\s+AND\s+NOT\s+invalidated\s*$`).
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.InvalidateLive(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMarkVerified(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^\s*UPDATE\s+verification_tokens\s+SET\s+verified\s*=\s*TRUE\s+WHERE\s+id\s*=\s*\$1`

	mock.ExpectExec(q).WithArgs("tok-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("tok-2").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkVerified(context.Background(), "tok-1"))
	require.ErrorIs(t, repo.MarkVerified(context.Background(), "tok-2"), common.ErrVersionConflict)
}

func TestListByAccount(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)FROM\s+verification_tokens\s+WHERE\s+account_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(tokenColumns).
			AddRow("t1", "acc-1", now, now.Add(time.Hour), false, true).
			AddRow("t2", "acc-1", now, now.Add(time.Hour), false, false))

	got, err := repo.ListByAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Invalidated)
	assert.True(t, got[1].Live())
}
