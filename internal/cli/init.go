// Package cli wires configuration, logging, storage and the ledger into the
// budget command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"budget/internal/backend"
	"budget/internal/config"
	"budget/internal/ledger"
	applog "budget/internal/log"
	"budget/internal/services"
)

// SetupLogger builds the application logger from configuration and sets it
// as the default. debug overrides the configured level.
func SetupLogger(cfg *config.Config, debug bool, out io.Writer) *applog.Logger {
	level, err := applog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	logger := applog.New(applog.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: applog.ComponentApp,
		Output:    out,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads environment variables from path. An empty path loads an
// optional .env in the working directory; an explicit path must exist.
func LoadEnvFile(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenService builds the configured store, initializes a ledger over it and
// returns the transaction service. Closing the service releases the store
// and the broker connection.
func OpenService(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*services.TransactionService, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentStorage).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	l := ledger.New(ledger.WithLogger(logger.WithComponent(applog.ComponentLedger).Logger))
	if err := l.Initialize(ctx, result.Store); err != nil {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
		return nil, fmt.Errorf("initialize ledger: %w", err)
	}

	// The backend cleanup closes the publisher too; amqp.Client.Close is
	// safe to call twice.
	svc := services.NewTransactionService(l, result.Publisher)
	svc.OnClose(func() error {
		if result.Cleanup != nil {
			return result.Cleanup()
		}
		return nil
	})
	return svc, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM.
func GracefulShutdown(parent context.Context, logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
