// Package payments provides the PostgreSQL-backed payment ledger.
package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/dbx"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
)

const selectColumns = `id, account_id, amount, payment_type, status,
		COALESCE(payment_method, ''), COALESCE(transaction_id, ''), COALESCE(proof_reference, ''),
		reference, notes, due_date, created_at, submitted_at, completed_at, version`

const transactionIDConstraint = "payments_transaction_id_key"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(row scanner) (*models.Payment, error) {
	p := &models.Payment{}
	var (
		paymentType, status, method string
		dueDate, submitted, done    sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Amount, &paymentType, &status,
		&method, &p.TransactionID, &p.ProofReference,
		&p.Reference, &p.Notes, &dueDate, &p.CreatedAt, &submitted, &done, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	p.Type = models.PaymentType(paymentType)
	p.Status = models.PaymentStatus(status)
	p.Method = models.PaymentMethod(method)
	p.DueDate = dbx.TimePtr(dueDate)
	p.SubmittedAt = dbx.TimePtr(submitted)
	p.CompletedAt = dbx.TimePtr(done)
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	query := `
		INSERT INTO payments (account_id, amount, payment_type, status, notes, due_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, version
	`
	err := r.db.QueryRowContext(ctx, query,
		p.AccountID, p.Amount, string(p.Type), string(p.Status), p.Notes, dbx.NullTime(p.DueDate),
	).Scan(&p.ID, &p.CreatedAt, &p.Version)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Payment, error) {
	if !dbx.IsUUID(id) {
		return nil, common.ErrorNotFound
	}
	query := `SELECT ` + selectColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, error) {
	var (
		conds []string
		args  []any
	)
	if filter.AccountID != "" {
		if !dbx.IsUUID(filter.AccountID) {
			return []*models.Payment{}, nil
		}
		args = append(args, filter.AccountID)
		conds = append(conds, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + selectColumns + ` FROM payments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Update writes the mutable columns. transaction_id is only ever set while
// it is still NULL.
func (r *PostgresRepository) Update(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE payments
		SET status = $3,
		    payment_method = $4,
		    transaction_id = COALESCE(transaction_id, $5),
		    proof_reference = $6,
		    reference = $7,
		    notes = $8,
		    submitted_at = $9,
		    completed_at = $10,
		    version = version + 1
		WHERE id = $1 AND version = $2
	`
	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.Version,
		string(p.Status), dbx.NullString(string(p.Method)), dbx.NullString(p.TransactionID),
		dbx.NullString(p.ProofReference), p.Reference, p.Notes,
		dbx.NullTime(p.SubmittedAt), dbx.NullTime(p.CompletedAt),
	)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok && constraint == transactionIDConstraint {
			return common.NewValidationError("transaction_id", "already used by another payment")
		}
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrVersionConflict
	}

	p.Version++
	return nil
}
