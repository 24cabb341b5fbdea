package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-relay/webhook"
)

const maxBodyBytes = 10 << 20

/* HTTP layer DTOs for webhook API
 * Separate from domain entities to avoid leaking internal structure
 */

type captureResponse struct {
	WebhookID string `json:"webhookId"`
	Status    string `json:"status"`
}

type listResponse struct {
	Webhooks []webhook.Webhook `json:"webhooks"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// failedWebhook is the summary returned by the failed listing
type failedWebhook struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"projectId"`
	Status       webhook.Status `json:"status"`
	ReceivedAt   time.Time      `json:"receivedAt"`
	TargetURL    string         `json:"targetUrl,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	RetryCount   int            `json:"retryCount"`
	LastRetryAt  *time.Time     `json:"lastRetryAt,omitempty"`
	DLQAt        *time.Time     `json:"dlqAt,omitempty"`
}

type failedResponse struct {
	Webhooks []failedWebhook `json:"webhooks"`
	Total    int             `json:"total"`
}

type replayRequest struct {
	TargetURL string `json:"targetUrl"`
}

type retryResponse struct {
	Message   string `json:"message"`
	WebhookID string `json:"webhookId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// postRelay handles POST /relay/{projectId}
func postRelay(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectId")

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
			return
		}
		defer r.Body.Close()

		body := webhook.NormalizeBody(r.Header.Get("Content-Type"), raw)
		id, err := webhookService.Capture(r.Context(), projectID, r.Method, r.Header.Clone(), body)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, captureResponse{
			WebhookID: id,
			Status:    webhook.Received.String(),
		})
	})
}

// getWebhooks handles GET /webhooks?projectId=&limit=&offset=
func getWebhooks(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		limit, err := intParam(query.Get("limit"), webhook.DefaultListLimit)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		offset, err := intParam(query.Get("offset"), 0)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "offset must be a non-negative integer"})
			return
		}

		page, err := webhookService.List(r.Context(), webhook.ListFilter{
			ProjectID: query.Get("projectId"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, listResponse{
			Webhooks: page.Webhooks,
			Total:    page.Total,
			Limit:    page.Limit,
			Offset:   page.Offset,
		})
	})
}

// getFailedWebhooks handles GET /webhooks/failed
func getFailedWebhooks(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failed, err := webhookService.ListFailed(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		resp := failedResponse{
			Webhooks: make([]failedWebhook, 0, len(failed)),
			Total:    len(failed),
		}
		for _, wh := range failed {
			resp.Webhooks = append(resp.Webhooks, failedWebhook{
				ID:           wh.ID,
				ProjectID:    wh.ProjectID,
				Status:       wh.Status,
				ReceivedAt:   wh.ReceivedAt,
				TargetURL:    wh.TargetURL,
				ErrorMessage: wh.ErrorMessage,
				RetryCount:   wh.RetryCount,
				LastRetryAt:  wh.LastRetryAt,
				DLQAt:        wh.DLQAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// getWebhook handles GET /webhooks/{id}
func getWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, err := webhookService.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wh)
	})
}

// postReplay handles POST /webhooks/{id}/replay
func postReplay(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req replayRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object with targetUrl"})
			return
		}
		defer r.Body.Close()

		if err := webhookService.Replay(r.Context(), id, req.TargetURL); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, captureResponse{
			WebhookID: id,
			Status:    "accepted",
		})
	})
}

// postRetry handles POST /webhooks/{id}/retry
func postRetry(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := webhookService.ManualRetry(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, retryResponse{
			Message:   "Webhook queued for retry",
			WebhookID: id,
		})
	})
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

// writeError maps domain errors to status codes
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, webhook.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Webhook not found"})
	case errors.Is(err, webhook.ErrInvalidInput), errors.Is(err, webhook.ErrInvalidState):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
