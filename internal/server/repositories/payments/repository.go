package payments

import (
	"context"

	"github.com/dmitrijs2005/hostelpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	Get(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, error)
	// Update persists a transition. It succeeds only if the stored version
	// still equals payment.Version and then bumps payment.Version.
	Update(ctx context.Context, payment *models.Payment) error
}
