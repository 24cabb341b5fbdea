package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-relay/webhook"
)

const requestTimeout = 30 * time.Second

/* Handlers sets up the relay API routes
 * hub serves the live notification feed and metrics the Prometheus exposition;
 * either may be nil to leave its route out
 */
func Handlers(ctx context.Context, webhookService webhook.UseCase, hub http.Handler, metrics http.Handler) *chi.Mux {
	logger := httplog.NewLogger("webhook-relay", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	// Long-lived, so kept out of the request timeout
	if hub != nil {
		r.Method(http.MethodGet, "/ws", hub)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Method(http.MethodPost, "/relay/{projectId}", postRelay(webhookService))

		r.Route("/webhooks", func(r chi.Router) {
			r.Method(http.MethodGet, "/", getWebhooks(webhookService))
			r.Method(http.MethodGet, "/failed", getFailedWebhooks(webhookService))
			r.Method(http.MethodGet, "/{id}", getWebhook(webhookService))
			r.Method(http.MethodPost, "/{id}/replay", postReplay(webhookService))
			r.Method(http.MethodPost, "/{id}/retry", postRetry(webhookService))
		})
	})

	return r
}
