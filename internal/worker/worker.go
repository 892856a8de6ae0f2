package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"painel/internal/amqp"
	"painel/internal/log"
	"painel/internal/services"
)

// AdSpendSyncer runs one ad-spend sync pass over all configured projects.
type AdSpendSyncer interface {
	SyncAll(ctx context.Context) error
}

// Worker records queued webhook sales and periodically pulls ad spend.
type Worker struct {
	recorder services.SaleRecorder
	syncer   AdSpendSyncer
}

// NewWorker accepts a nil syncer when ad-spend sync is disabled.
func NewWorker(recorder services.SaleRecorder, syncer AdSpendSyncer) *Worker {
	return &Worker{recorder: recorder, syncer: syncer}
}

// HandleWebhookSale processes a single queued sale.
func (w *Worker) HandleWebhookSale(ctx context.Context, msg *amqp.WebhookSaleMessage) error {
	slog.InfoContext(ctx, "Processing webhook sale", log.FieldComponent, log.ComponentWorker,
		"project", msg.ProjectID,
		"source", msg.Sale.Source,
		"external_id", msg.Sale.ExternalID,
		"queued_at", msg.Timestamp)

	if err := w.recorder.RecordWebhookSale(ctx, msg.ProjectID, msg.Sale); err != nil {
		return fmt.Errorf("record webhook sale: %w", err)
	}
	return nil
}

// StartupSync runs one sync pass so a restarted worker catches up before
// waiting for the first tick.
func (w *Worker) StartupSync(ctx context.Context) error {
	if w.syncer == nil {
		slog.InfoContext(ctx, "Ad spend sync disabled, skipping startup sync", log.FieldComponent, log.ComponentWorker)
		return nil
	}
	start := time.Now()
	err := w.syncer.SyncAll(ctx)
	slog.InfoContext(ctx, "Startup ad spend sync finished", log.FieldComponent, log.ComponentWorker,
		"duration", time.Since(start).Round(time.Millisecond),
		"failed", err != nil)
	return err
}

// RunSyncLoop syncs ad spend every interval until ctx is done.
func (w *Worker) RunSyncLoop(ctx context.Context, interval time.Duration) {
	if w.syncer == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.syncer.SyncAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic ad spend sync failed", log.FieldComponent, log.ComponentWorker, "error", err)
			}
		}
	}
}
