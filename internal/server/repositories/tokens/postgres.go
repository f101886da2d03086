// Package tokens stores email verification tokens in PostgreSQL.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/dbx"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.VerificationToken) error {
	query := `
		INSERT INTO verification_tokens (id, account_id, created_at, expires_at, verified, invalidated)
		VALUES ($1, $2, $3, $4, FALSE, FALSE)
	`
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.AccountID, t.CreatedAt, t.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.VerificationToken, error) {
	query := `
		SELECT id, account_id, created_at, expires_at, verified, invalidated
		FROM verification_tokens
		WHERE id = $1
		FOR UPDATE
	`
	t := &models.VerificationToken{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.AccountID, &t.CreatedAt, &t.ExpiresAt, &t.Verified, &t.Invalidated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) InvalidateLive(ctx context.Context, accountID string) (int64, error) {
	query := `
		UPDATE verification_tokens
		SET invalidated = TRUE
		WHERE account_id = $1 AND NOT verified AND NOT invalidated
	`
	res, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// MarkVerified flips a live token to verified. A token that is no longer
// live yields common.ErrVersionConflict.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	query := `
		UPDATE verification_tokens
		SET verified = TRUE
		WHERE id = $1 AND NOT verified AND NOT invalidated
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrVersionConflict
	}
	return nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.VerificationToken, error) {
	query := `
		SELECT id, account_id, created_at, expires_at, verified, invalidated
		FROM verification_tokens
		WHERE account_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.VerificationToken
	for rows.Next() {
		t := &models.VerificationToken{}
		if err := rows.Scan(&t.ID, &t.AccountID, &t.CreatedAt, &t.ExpiresAt, &t.Verified, &t.Invalidated); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
