package payments

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
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

const (
	paymentID = "3c4d5e6f-7a8b-4c9d-8e0f-1a2b3c4d5e6f"
	bobID     = "9a8b7c6d-5e4f-4a3b-9c2d-1e0f2a3b4c5d"
)

var paymentColumns = []string{
	"id", "account_id", "amount", "payment_type", "status", "payment_method", "transaction_id",
	"proof_reference", "reference", "notes", "due_date", "created_at", "submitted_at", "completed_at", "version",
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+payments\b.*RETURNING\s+id,\s*created_at,\s*version\s*$`).
		WithArgs("bob", int64(150000), "rent", "pending", "", due).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "version"}).AddRow("p1", now, int64(1)))

	got, err := repo.Create(context.Background(), &models.Payment{
		AccountID: "bob", Amount: 150000, Type: models.TypeRent, Status: models.StatusPending, DueDate: &due,
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, int64(1), got.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	q := `(?s)^SELECT\s+id,\s*account_id.*FROM\s+payments\s+WHERE\s+id\s*=\s*\$1$`

	mock.ExpectQuery(q).WithArgs(paymentID).WillReturnRows(sqlmock.NewRows(paymentColumns).
		AddRow("p1", "bob", int64(100), "deposit", "submitted", "bank-transfer", "", "payments/bob/x.pdf",
			"ref", "", nil, now, now, nil, int64(2)))
	mock.ExpectQuery(q).WithArgs(bobID).WillReturnError(sql.ErrNoRows)

	got, err := repo.Get(context.Background(), paymentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, got.Status)
	assert.Equal(t, models.MethodBankTransfer, got.Method)
	assert.Equal(t, models.TypeDeposit, got.Type)
	assert.Equal(t, "payments/bob/x.pdf", got.ProofReference)
	assert.Nil(t, got.DueDate)
	assert.NotNil(t, got.SubmittedAt)
	assert.Nil(t, got.CompletedAt)

	_, err = repo.Get(context.Background(), bobID)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestList_Filters(t *testing.T) {
	tests := []struct {
		name   string
		filter models.PaymentFilter
		query  string
		args   []driver.Value
	}{
		{
			name:  "all",
			query: `(?s)FROM\s+payments\s+ORDER\s+BY\s+created_at\s+DESC$`,
		},
		{
			name:   "by owner",
			filter: models.PaymentFilter{AccountID: bobID},
			query:  `(?s)FROM\s+payments\s+WHERE\s+account_id\s*=\s*\$1\s+ORDER\s+BY`,
			args:   []driver.Value{bobID},
		},
		{
			name:   "by owner and status",
			filter: models.PaymentFilter{AccountID: bobID, Status: models.StatusPending},
			query:  `(?s)WHERE\s+account_id\s*=\s*\$1\s+AND\s+status\s*=\s*\$2\s+ORDER\s+BY`,
			args:   []driver.Value{bobID, "pending"},
		},
		{
			name:   "by status",
			filter: models.PaymentFilter{Status: models.StatusSubmitted},
			query:  `(?s)WHERE\s+status\s*=\s*\$1\s+ORDER\s+BY`,
			args:   []driver.Value{"submitted"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			now := time.Now()

			exp := mock.ExpectQuery(tt.query)
			if len(tt.args) > 0 {
				exp = exp.WithArgs(tt.args...)
			}
			exp.WillReturnRows(sqlmock.NewRows(paymentColumns).
				AddRow("p1", "bob", int64(100), "rent", "pending", "", "", "", "", "", nil, now, nil, nil, int64(1)))

			got, err := repo.List(context.Background(), tt.filter)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, models.StatusPending, got[0].Status)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMalformedIDs(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	_, err := repo.Get(context.Background(), "abc")
	require.ErrorIs(t, err, common.ErrorNotFound)

	got, err := repo.List(context.Background(), models.PaymentFilter{AccountID: "bob"})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_Empty(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM\s+payments`).WillReturnRows(sqlmock.NewRows(paymentColumns))

	got, err := repo.List(context.Background(), models.PaymentFilter{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

const updateQuery = `(?s)^\s*UPDATE\s+payments\s+SET\s+status\s*=\s*\$3.*transaction_id\s*=\s*COALESCE\(transaction_id,\s*\$5\).*WHERE\s+id\s*=\s*\$1\s+AND\s+version\s*=\s*\$2\s*$`

func TestUpdate_BumpsVersion(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectExec(updateQuery).
		WithArgs("p1", int64(1), "submitted", "bank-transfer", nil, "payments/bob/x.pdf", "", "", now, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &models.Payment{
		ID: "p1", Version: 1, Status: models.StatusSubmitted, Method: models.MethodBankTransfer,
		ProofReference: "payments/bob/x.pdf", SubmittedAt: &now,
	}
	require.NoError(t, repo.Update(context.Background(), p))
	assert.Equal(t, int64(2), p.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_StaleVersion(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(updateQuery).WillReturnResult(sqlmock.NewResult(0, 0))

	p := &models.Payment{ID: "p1", Version: 3, Status: models.StatusPending}
	require.ErrorIs(t, repo.Update(context.Background(), p), common.ErrVersionConflict)
	assert.Equal(t, int64(3), p.Version)
}

func TestUpdate_DuplicateTransactionID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(updateQuery).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "payments_transaction_id_key"})

	err := repo.Update(context.Background(), &models.Payment{ID: "p1", Version: 2, TransactionID: "TX-001"})
	require.ErrorIs(t, err, common.ErrValidation)

	var ve *common.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "transaction_id", ve.Field)
}

func TestUpdate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(updateQuery).WillReturnError(errors.New("db down"))

	err := repo.Update(context.Background(), &models.Payment{ID: "p1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrVersionConflict)
}
