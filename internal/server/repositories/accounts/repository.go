package accounts

import (
	"context"

	"github.com/dmitrijs2005/hostelpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error)
	// GetByLogin matches either the username or the email.
	GetByLogin(ctx context.Context, login string) (*models.Account, error)
	UserNameExists(ctx context.Context, userName string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// Activate sets both email_verified and active.
	Activate(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
}
