package cli

import (
	"context"

	"github.com/dmitrijs2005/hostelpay/internal/logging"
	"github.com/dmitrijs2005/hostelpay/internal/server"
	"github.com/dmitrijs2005/hostelpay/internal/server/access"
	"github.com/dmitrijs2005/hostelpay/internal/server/config"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/dmitrijs2005/hostelpay/internal/server/services"
)

// operatorID identifies CLI-driven changes in logs.
const operatorID = "hostelctl"

// Backend is what the commands need from the service layer.
type Backend interface {
	Migrate(ctx context.Context) error
	CreateStaff(ctx context.Context, req services.RegisterRequest, role models.Role) (*models.Account, error)
	SetActive(ctx context.Context, id string, active bool) (*models.Account, error)
	CreatePayment(ctx context.Context, req services.CreatePaymentRequest) (*models.Payment, error)
	VerifyPayment(ctx context.Context, id, transactionID string) (*models.Payment, error)
	RejectPayment(ctx context.Context, id, reason string) (*models.Payment, error)
	Close() error
}

// Opener builds a Backend from the loaded configuration.
type Opener func(ctx context.Context, cfg *config.Config) (Backend, error)

type depsBackend struct {
	deps  *server.Deps
	actor access.Actor
}

// OpenDeps is the production Opener: it connects to every configured
// dependency and acts as an administrator.
func OpenDeps(ctx context.Context, cfg *config.Config) (Backend, error) {
	deps, err := server.NewDeps(ctx, cfg, logging.Discard())
	if err != nil {
		return nil, err
	}
	return &depsBackend{deps: deps, actor: access.Actor{ID: operatorID, Role: models.RoleAdmin}}, nil
}

func (b *depsBackend) Migrate(ctx context.Context) error {
	return b.deps.Repos.RunMigrations(ctx, b.deps.DB)
}

func (b *depsBackend) CreateStaff(ctx context.Context, req services.RegisterRequest, role models.Role) (*models.Account, error) {
	return b.deps.Accounts.CreateStaff(ctx, req, role)
}

func (b *depsBackend) SetActive(ctx context.Context, id string, active bool) (*models.Account, error) {
	return b.deps.Accounts.SetActive(ctx, b.actor, id, active)
}

func (b *depsBackend) CreatePayment(ctx context.Context, req services.CreatePaymentRequest) (*models.Payment, error) {
	return b.deps.Payments.Create(ctx, b.actor, req)
}

func (b *depsBackend) VerifyPayment(ctx context.Context, id, transactionID string) (*models.Payment, error) {
	return b.deps.Payments.Verify(ctx, b.actor, id, transactionID)
}

func (b *depsBackend) RejectPayment(ctx context.Context, id, reason string) (*models.Payment, error) {
	return b.deps.Payments.Reject(ctx, b.actor, id, reason)
}

func (b *depsBackend) Close() error {
	return b.deps.Close()
}
