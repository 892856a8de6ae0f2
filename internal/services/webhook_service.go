package services

import (
	"context"
	"fmt"
	"log/slog"

	"painel/internal/core"
	"painel/internal/log"
	"painel/internal/metrics"
)

// SalePublisher hands a webhook sale to the queue for asynchronous recording.
type SalePublisher interface {
	PublishWebhookSale(ctx context.Context, projectID string, sale core.SaleRow) error
}

// SaleRecorder stores a webhook sale.
type SaleRecorder interface {
	RecordWebhookSale(ctx context.Context, projectID string, sale core.SaleRow) error
}

// WebhookService accepts verified platform notifications. With a publisher
// the sale is queued for the worker; without one, or when publishing fails,
// it is recorded inline.
type WebhookService struct {
	recorder  SaleRecorder
	publisher SalePublisher
	metrics   *metrics.Metrics
}

func NewWebhookService(recorder SaleRecorder, publisher SalePublisher, m *metrics.Metrics) *WebhookService {
	return &WebhookService{recorder: recorder, publisher: publisher, metrics: m}
}

// Accept reports whether the sale was queued (true) or recorded inline.
func (w *WebhookService) Accept(ctx context.Context, projectID string, sale core.SaleRow) (queued bool, err error) {
	if err := checkProject(projectID); err != nil {
		return false, err
	}
	if err := sale.Validate(); err != nil {
		w.metrics.Webhook(string(sale.Source), "invalid")
		return false, fmt.Errorf("webhook sale: %w", err)
	}

	if w.publisher != nil {
		err := w.publisher.PublishWebhookSale(ctx, projectID, sale)
		if err == nil {
			w.metrics.Webhook(string(sale.Source), "queued")
			return true, nil
		}
		slog.ErrorContext(ctx, "Failed to publish webhook sale, recording inline",
			log.FieldComponent, log.ComponentWebhook, "project", projectID, "external_id", sale.ExternalID, "error", err)
	} else {
		slog.DebugContext(ctx, "AMQP client not available, recording webhook sale inline",
			log.FieldComponent, log.ComponentWebhook, "project", projectID)
	}

	if err := w.recorder.RecordWebhookSale(ctx, projectID, sale); err != nil {
		w.metrics.Webhook(string(sale.Source), "failed")
		return false, err
	}
	w.metrics.Webhook(string(sale.Source), "recorded")
	return false, nil
}
