package amqp

import (
	"encoding/json"
	"time"

	"painel/internal/core"
)

// WebhookSaleMessage carries a verified platform sale to the worker, which
// upserts it into the project's month bucket.
type WebhookSaleMessage struct {
	ProjectID string       `json:"project_id"`
	Sale      core.SaleRow `json:"sale"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewWebhookSaleMessage(projectID string, sale core.SaleRow) *WebhookSaleMessage {
	return &WebhookSaleMessage{
		ProjectID: projectID,
		Sale:      sale,
		Timestamp: time.Now(),
	}
}

func (m *WebhookSaleMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func WebhookSaleMessageFromJSON(data []byte) (*WebhookSaleMessage, error) {
	var msg WebhookSaleMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
