// Package cli provides common CLI initialization utilities shared by
// cmd/painel and cmd/painel-worker.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"painel/internal/amqp"
	"painel/internal/backend"
	"painel/internal/config"
	"painel/internal/log"
	"painel/internal/metasync"
	"painel/internal/metrics"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.FromSettings(cfg.LogLevel, cfg.LogFormat, component)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// Money goes out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
	return cfg
}

// InitBackend creates the store, spreadsheet source and report cache, or
// exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	b, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "type", cfg.DataBackend)
		os.Exit(1)
	}
	return b
}

// InitAMQP connects to the broker when AMQP_URL is set. A nil client means
// webhook sales are recorded inline.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, webhook sales are recorded inline")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without queue", log.FieldError, err)
		return nil
	}
	logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// NewMetaSyncer builds the ad-spend syncer, or returns nil when the Meta
// token or account mapping is missing.
func NewMetaSyncer(logger *log.Logger, cfg *config.Config, sink metasync.Sink, m *metrics.Metrics) *metasync.Syncer {
	if !cfg.MetaSyncEnabled() {
		logger.Info("Meta ad-spend sync disabled")
		return nil
	}
	accounts, err := metasync.ParseAccounts(cfg.MetaAdAccounts)
	if err != nil {
		logger.Error("Invalid META_AD_ACCOUNTS, sync disabled", log.FieldError, err)
		return nil
	}
	client := metasync.NewClient(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.MetaAPIBaseURL, cfg.MetaAccessToken)
	logger.Info("Meta ad-spend sync enabled",
		"accounts", len(accounts),
		"interval", cfg.MetaSyncInterval,
		"lookback_days", cfg.MetaSyncLookbackDays)
	return metasync.NewSyncer(client, sink, accounts, cfg.MetaSyncLookbackDays, cfg.MetaSyncConcurrency, m)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled on SIGINT or SIGTERM after cleanup has
// run; done is closed once shutdown has finished or timed out.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until shutdown has completed.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
