// Package server wires configuration, storage and services together and
// runs the HTTP API and the gRPC health endpoint until a shutdown signal.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/hostelpay/internal/logging"
	"github.com/dmitrijs2005/hostelpay/internal/server/config"
	"github.com/dmitrijs2005/hostelpay/internal/server/rest"

	gs "github.com/dmitrijs2005/hostelpay/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	deps   *Deps
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	deps, err := NewDeps(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	if err := deps.Repos.RunMigrations(ctx, deps.DB); err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &App{config: c, logger: logger, deps: deps}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.deps.DB)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := rest.NewHandler(app.deps.Accounts, app.deps.Payments, rest.Options{
		SecretKey:      app.config.SecretKey,
		LoginURL:       app.config.LoginRedirectURL,
		MaxProofSize:   app.deps.Proofs.MaxSize(),
		AllowedOrigins: app.config.CORSAllowedOrigins,
		Files:          app.deps.Files,
	}, app.logger)

	s := rest.NewServer(app.config.HTTPAddr, h.Routes(), app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.deps.Close(); err != nil {
		app.logger.Error(context.Background(), "closing dependencies", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
