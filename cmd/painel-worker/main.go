package main

import (
	"context"
	"errors"
	"time"

	"painel/internal/cli"
	"painel/internal/log"
	"painel/internal/metrics"
	"painel/internal/services"
	"painel/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting painel-worker")

	m := metrics.New()
	b := cli.InitBackend(context.Background(), logger, cfg)
	// Reports are cached by the server process; the worker only writes.
	dash := services.NewDashboardService(b.Store, services.WithMetrics(m))

	var syncer worker.AdSpendSyncer
	if s := cli.NewMetaSyncer(logger, cfg, dash, m); s != nil {
		syncer = s
	}
	w := worker.NewWorker(dash, syncer)

	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient == nil && syncer == nil {
		logger.Warn("Neither AMQP_URL nor Meta sync is configured, worker will idle")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := b.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := w.StartupSync(ctx); err != nil {
		logger.Error("Startup ad spend sync failed", log.FieldError, err)
	}
	go w.RunSyncLoop(ctx, cfg.MetaSyncInterval)

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeWebhookSales(ctx, w.HandleWebhookSale)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Webhook sale consumption failed", log.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
