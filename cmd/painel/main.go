package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"painel/internal/cli"
	apphttp "painel/internal/http"
	"painel/internal/log"
	"painel/internal/metrics"
	"painel/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	logger.Info("Starting painel server")

	m := metrics.New()
	b := cli.InitBackend(context.Background(), logger, cfg)
	dash := services.NewDashboardService(b.Store, append(b.ServiceOptions(), services.WithMetrics(m))...)

	amqpClient := cli.InitAMQP(logger, cfg)
	var publisher services.SalePublisher
	if amqpClient != nil {
		publisher = amqpClient
	}
	hooks := services.NewWebhookService(dash, publisher, m)

	srv := apphttp.NewServer(":"+cfg.Port, dash, hooks, apphttp.Options{
		MaxUploadBytes:    cfg.MaxUploadBytes,
		HotmartHottok:     cfg.HotmartHottok,
		KiwifySecret:      cfg.KiwifyWebhookSecret,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Logger:            logger,
		Metrics:           m,
	})
	srv.ReadTimeout = cfg.HTTPTimeout
	srv.WriteTimeout = cfg.HTTPTimeout
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := b.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Listening",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"queue_enabled", amqpClient != nil,
		"sheets_source", cfg.SheetsSource)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
