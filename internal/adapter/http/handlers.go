// Package http exposes the service surface: health, metrics and the two
// platform webhook endpoints.
package http

import (
	"io"
	"net/http"

	otelx "github.com/sustainabot/sustainabot/internal/adapter/otel"
	"github.com/sustainabot/sustainabot/internal/domain/webhook"
	"github.com/sustainabot/sustainabot/internal/report"
	"github.com/sustainabot/sustainabot/internal/service"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	Pipeline *service.Pipeline
	Runtime  *service.Runtime
	Metrics  *otelx.Metrics
	Mode     report.Mode
}

// HandleHealth handles GET /health. A runtime that has begun shutting down
// reports unavailable so load balancers drain the instance.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	if !h.Runtime.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"mode":   string(h.Mode),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   string(h.Mode),
	})
}

// HandleMetrics handles GET /metrics with a JSON counter snapshot.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Metrics.Read())
}

// HandleGitHubWebhook handles POST /webhooks/github. Signature verification
// already happened in middleware; by this point the body is trusted.
func (h *Handlers) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, webhook.PlatformGitHub, r.Header.Get("X-GitHub-Event"))
}

// HandleGitLabWebhook handles POST /webhooks/gitlab.
func (h *Handlers) HandleGitLabWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, webhook.PlatformGitLab, r.Header.Get("X-Gitlab-Event"))
}

func (h *Handlers) handleWebhook(w http.ResponseWriter, r *http.Request, platform webhook.Platform, eventType string) {
	h.Metrics.WebhookReceived(string(platform))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	ctx, span := otelx.StartWebhookSpan(r.Context(), string(platform), eventType)
	defer span.End()

	ev, err := service.Normalize(platform, eventType, body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	triggered, err := h.Pipeline.Process(ctx, ev)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !triggered {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "event": eventType})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed", "event": eventType})
}
