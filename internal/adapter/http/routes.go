package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/sustainabot/sustainabot/internal/middleware"
)

// MountRoutes registers all routes on the given chi router. The webhook
// endpoints sit behind their verification middleware; health and metrics
// are open.
func MountRoutes(r chi.Router, h *Handlers, githubSecret, gitlabSecret string) {
	r.Get("/health", h.HandleHealth)
	r.Get("/metrics", h.HandleMetrics)

	r.Route("/webhooks", func(r chi.Router) {
		r.With(middleware.GitHubSignature(githubSecret, h.Metrics)).
			Post("/github", h.HandleGitHubWebhook)
		r.With(middleware.GitLabToken(gitlabSecret, h.Metrics)).
			Post("/gitlab", h.HandleGitLabWebhook)
	})
}
