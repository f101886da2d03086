package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, accountID string, token string, expires time.Time) error
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	Delete(ctx context.Context, token string) error
}
