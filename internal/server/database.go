package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	repo "github.com/joseph-ayodele/invoices-tracker/internal/repository"
)

// ConnectDB opens the configured store and ensures its schema.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.Store, error) {
	logger.Info("connecting to database", "driver", cfg.Driver)
	store, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Driver,
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database", "dialect", store.Dialect())
	return store, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, store *repo.Store, logger *slog.Logger, timeout time.Duration) error {
	logger.Debug("pinging database")
	if err := store.HealthCheck(ctx, timeout); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

// CloseDB closes the database connections gracefully
func CloseDB(store *repo.Store, logger *slog.Logger) {
	if store == nil {
		return
	}
	logger.Info("closing database connections")
	store.Close()
	logger.Info("database connections closed")
}
