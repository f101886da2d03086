// Package accounts provides the PostgreSQL-backed account store.
package accounts

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

const selectColumns = `id, username, email, first_name, last_name, COALESCE(phone, ''),
		password_hash, active, email_verified, role, created_at, updated_at`

// uniqueFields maps constraint names to the offending input field.
var uniqueFields = map[string]string{
	"accounts_username_key": "username",
	"accounts_email_key":    "email",
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (username, email, first_name, last_name, phone, password_hash, active, email_verified, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.UserName, a.Email, a.FirstName, a.LastName, dbx.NullString(a.Phone),
		a.PasswordHash, a.Active, a.EmailVerified, string(a.Role),
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			if field, known := uniqueFields[constraint]; known {
				return nil, common.NewValidationError(field, "already taken")
			}
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if !dbx.IsUUID(id) {
		return nil, common.ErrorNotFound
	}
	query := `SELECT ` + selectColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	if !dbx.IsUUID(id) {
		return nil, common.ErrorNotFound
	}
	query := `SELECT ` + selectColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// GetByLogin matches an email when login contains '@' and a username
// otherwise; usernames cannot contain '@', so at most one row matches.
func (r *PostgresRepository) GetByLogin(ctx context.Context, login string) (*models.Account, error) {
	if strings.Contains(login, "@") {
		return r.getOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE email = lower($1)`, login)
	}
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE username = $1`, login)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a := &models.Account{}
	var role string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.UserName, &a.Email, &a.FirstName, &a.LastName, &a.Phone,
		&a.PasswordHash, &a.Active, &a.EmailVerified, &role, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.Role = models.Role(role)
	return a, nil
}

func (r *PostgresRepository) UserNameExists(ctx context.Context, userName string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, userName)
}

func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = lower($1))`, email)
}

func (r *PostgresRepository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) Activate(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET email_verified = TRUE, active = TRUE, updated_at = now()
		WHERE id = $1
	`
	return r.updateOne(ctx, query, id)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE accounts
		SET active = $2, updated_at = now()
		WHERE id = $1
	`
	return r.updateOne(ctx, query, id, active)
}

// updateOne runs query with id as $1 followed by rest.
func (r *PostgresRepository) updateOne(ctx context.Context, query string, id string, rest ...any) error {
	if !dbx.IsUUID(id) {
		return common.ErrorNotFound
	}
	res, err := r.db.ExecContext(ctx, query, append([]any{id}, rest...)...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
