package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/hostelpay/internal/logging"
	"github.com/dmitrijs2005/hostelpay/internal/server/artifacts"
	"github.com/dmitrijs2005/hostelpay/internal/server/config"
	"github.com/dmitrijs2005/hostelpay/internal/server/mail"
	"github.com/dmitrijs2005/hostelpay/internal/server/ratelimit"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/hostelpay/internal/server/services"
	"github.com/dmitrijs2005/hostelpay/internal/server/storage"
	"github.com/redis/go-redis/v9"
)

const resendKeyPrefix = "hostelpay:resend:"

// Deps is the wired service graph shared by the server and the admin CLI.
type Deps struct {
	DB       *sql.DB
	Repos    repomanager.RepositoryManager
	Tokens   *services.TokenService
	Accounts *services.AccountService
	Payments *services.PaymentService
	Proofs   *artifacts.Handler
	// Files serves proof links when proofs live in memory; nil with S3.
	Files http.Handler

	closers []func() error
}

// NewDeps opens the database and builds every collaborator selected by cfg.
func NewDeps(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Deps, error) {
	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	d := &Deps{DB: db, Repos: repomanager.NewPostgresRepositoryManager()}
	d.closers = append(d.closers, db.Close)

	store, err := newObjectStore(ctx, cfg, logger)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}
	if m, ok := store.(*storage.MemoryStore); ok {
		d.Files = m
	}

	mailer, err := d.newMailer(cfg, logger)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("mail gateway init error: %w", err)
	}

	cooldown, err := d.newCooldown(ctx, cfg, logger)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	d.Proofs = artifacts.NewHandler(store, artifacts.WithMaxSize(cfg.MaxProofSize))

	d.Tokens = services.NewTokenService(db, d.Repos, cfg, logger)
	d.Accounts = services.NewAccountService(db, d.Repos, d.Tokens, mailer, cooldown, cfg, logger)
	d.Payments = services.NewPaymentService(db, d.Repos, d.Proofs, store, cfg, logger)
	return d, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (storage.ObjectStore, error) {
	if cfg.S3RootUser == "" {
		logger.Warn(ctx, "no S3 credentials configured; proofs are kept in memory")
		return storage.NewMemoryStore(cfg.PublicBaseURL + "/files"), nil
	}
	return storage.NewS3Store(ctx, storage.S3Config{
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3RootUser,
		SecretKey:    cfg.S3RootPassword,
		BaseEndpoint: cfg.S3BaseEndpoint,
		Bucket:       cfg.S3Bucket,
	})
}

func (d *Deps) newMailer(cfg *config.Config, logger logging.Logger) (mail.Gateway, error) {
	if cfg.MailBackend != config.MailBackendAMQP {
		return mail.NewLogGateway(logger), nil
	}
	g, err := mail.NewAMQPGateway(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, g.Close)
	return g, nil
}

func (d *Deps) newCooldown(ctx context.Context, cfg *config.Config, logger logging.Logger) (ratelimit.Cooldown, error) {
	if cfg.RedisAddr == "" {
		logger.Info(ctx, "resend cooldown disabled")
		return ratelimit.Unlimited{}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	d.closers = append(d.closers, client.Close)
	return ratelimit.NewRedisCooldown(client, resendKeyPrefix, cfg.ResendCooldown), nil
}

// Close releases connections in reverse order of acquisition.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}
