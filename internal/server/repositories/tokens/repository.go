package tokens

import (
	"context"

	"github.com/dmitrijs2005/hostelpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.VerificationToken) error
	// GetForUpdate locks the token row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.VerificationToken, error)
	// InvalidateLive marks every unverified, non-invalidated token of the
	// account as invalidated and returns how many rows changed.
	InvalidateLive(ctx context.Context, accountID string) (int64, error)
	MarkVerified(ctx context.Context, id string) error
	ListByAccount(ctx context.Context, accountID string) ([]*models.VerificationToken, error)
}
