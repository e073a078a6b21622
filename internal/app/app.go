package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/localpay/localpay/internal/config"
	"github.com/localpay/localpay/internal/gateway/osmpclient"
	"github.com/localpay/localpay/internal/logger"
	"github.com/localpay/localpay/internal/planup/planupclient"
	"github.com/localpay/localpay/internal/processing"
	"github.com/localpay/localpay/internal/recon"
	"github.com/localpay/localpay/internal/server"
	"github.com/localpay/localpay/internal/storage"
	"github.com/localpay/localpay/internal/storage/inmemory"
	"github.com/localpay/localpay/internal/storage/pgstorage"
)

type Application struct {
	log    *slog.Logger
	server *server.Server
	store  storage.Storage
}

func New() (*Application, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config.NewConfig: %w", err)
	}

	logLevel, err := logger.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger.ParseLogLevel: %w", err)
	}

	logg := logger.NewLogger(
		logger.WithLevel(logLevel),
		logger.WithFormat(logger.LogFormatJSON),
		logger.WithAddSource(false),
	)

	store, err := newStorage(cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("newStorage: %w", err)
	}

	gateway := osmpclient.New(
		osmpclient.WithLogger(logg),
		osmpclient.WithBaseURL(cfg.GatewayURL),
		osmpclient.WithTimeout(cfg.GatewayTimeout),
	)

	partner := planupclient.New(
		planupclient.WithLogger(logg),
		planupclient.WithBaseURL(cfg.PlanupURL),
		planupclient.WithTimeout(cfg.PlanupTimeout),
	)

	engine := processing.New(store, gateway,
		processing.WithLogger(logg),
	)

	reconciler := recon.New(store, partner,
		recon.WithLogger(logg),
		recon.WithParallelism(cfg.ReconConcurrency),
	)

	srv := server.NewServer(store, engine, reconciler,
		server.WithServerAddr(cfg.ServerAddr),
		server.WithJWTSecretKey([]byte(cfg.JWTSecretKey)),
		server.WithLogger(logg),
	)

	return &Application{
		log:    logg,
		server: srv,
		store:  store,
	}, nil
}

// newStorage picks Postgres when a connection string is configured and the
// in-memory store otherwise.
func newStorage(databaseURI string) (storage.Storage, error) {
	if databaseURI == "" {
		return storage.NewStorage(inmemory.NewStorage()), nil
	}

	pgstore, err := pgstorage.NewStorage(databaseURI)
	if err != nil {
		return nil, fmt.Errorf("pgstorage.NewStorage: %w", err)
	}

	if err := pgstore.Bootstrap(context.Background()); err != nil {
		return nil, fmt.Errorf("pgstorage.Bootstrap: %w", err)
	}

	return storage.NewStorage(pgstore), nil
}

func (a *Application) Run() error {
	errChan := make(chan error, 1)

	go func() {
		if err := a.server.Start(); err != nil {
			errChan <- fmt.Errorf("server.Start: %w", err)
		}
	}()

	// Graceful shutdown handler
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err

	case <-quit:
		a.log.Info("Gracefully shutting down application...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Error("server.Shutdown", slog.Any("error", err))
		}

		if err := a.store.Close(); err != nil {
			a.log.Error("storage.Close", slog.Any("error", err))
		}

		return nil
	}
}
