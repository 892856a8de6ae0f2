package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"painel/internal/core"
	"painel/internal/log"
	"painel/internal/webhook"
)

type webhookResponse struct {
	Status     string `json:"status"`
	ExternalID string `json:"externalId,omitempty"`
	Period     string `json:"period,omitempty"`
}

// handleWebhook verifies and accepts a sale notification. Queued sales
// answer 202, inline-recorded ones 200, ignored events 200 as well so the
// platform stops retrying.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	platform := strings.ToLower(chi.URLParam(r, "platform"))
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))

	if s.hooks == nil {
		writeError(w, r, log.OpWebhook, fmt.Errorf("%w: %s", webhook.ErrUnknownPlatform, platform))
		return
	}
	if projectID == "" {
		writeError(w, r, log.OpWebhook, core.ErrEmptyProjectID)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err != nil {
		writeError(w, r, log.OpWebhook, err)
		return
	}

	if err := s.verifyWebhook(platform, r, body); err != nil {
		if errors.Is(err, webhook.ErrUnauthorized) {
			s.metrics.Webhook(platform, "unauthorized")
		}
		writeError(w, r, log.OpWebhook, err)
		return
	}

	sale, err := webhook.Parse(platform, body)
	if errors.Is(err, webhook.ErrIgnoredEvent) {
		s.metrics.Webhook(platform, "ignored")
		log.FromContext(ctx).InfoContext(ctx, "Webhook event ignored",
			log.FieldPlatform, platform, log.FieldProject, projectID, "reason", err.Error())
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored"})
		return
	}
	if err != nil {
		s.metrics.Webhook(platform, "invalid")
		writeError(w, r, log.OpWebhook, err)
		return
	}

	queued, err := s.hooks.Accept(ctx, projectID, sale)
	if err != nil {
		writeError(w, r, log.OpWebhook, err)
		return
	}

	resp := webhookResponse{Status: "recorded", ExternalID: sale.ExternalID, Period: sale.Date[:7]}
	code := http.StatusOK
	if queued {
		resp.Status = "queued"
		code = http.StatusAccepted
	}
	writeJSON(w, code, resp)
}

func (s *Server) verifyWebhook(platform string, r *http.Request, body []byte) error {
	switch platform {
	case "hotmart":
		return webhook.VerifyHotmart(r.Header.Get("X-Hotmart-Hottok"), body, s.hotmartHottok)
	case "kiwify":
		return webhook.VerifyKiwify(body, r.URL.Query().Get("signature"), s.kiwifySecret)
	default:
		return fmt.Errorf("%w: %q", webhook.ErrUnknownPlatform, platform)
	}
}
