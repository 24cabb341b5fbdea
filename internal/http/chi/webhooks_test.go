package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/marcelsud/webhook-relay/webhook/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, s webhook.UseCase, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	ctx := context.Background()
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	require.NoError(t, err)

	w := httptest.NewRecorder()
	Handlers(ctx, s, nil, nil).ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	w := serve(t, mocks.NewUseCase(t), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestPostRelay(t *testing.T) {
	t.Run("captures and returns the id", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("Capture", mock.Anything, "p1", http.MethodPost,
			mock.MatchedBy(func(h map[string][]string) bool {
				return len(h["Content-Type"]) == 1 && h["Content-Type"][0] == "application/json"
			}),
			json.RawMessage(`{"a":1}`),
		).Return("wh-1", nil)

		w := serve(t, s, http.MethodPost, "/relay/p1", `{"a":1}`)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp captureResponse
		decode(t, w, &resp)
		assert.Equal(t, captureResponse{WebhookID: "wh-1", Status: "received"}, resp)
	})

	t.Run("form body is stored as an object", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("Capture", mock.Anything, "p1", http.MethodPost, mock.Anything,
			mock.MatchedBy(func(b json.RawMessage) bool {
				var obj map[string]interface{}
				return json.Unmarshal(b, &obj) == nil && obj["name"] == "ada"
			}),
		).Return("wh-2", nil)

		req := httptest.NewRequest(http.MethodPost, "/relay/p1", strings.NewReader("name=ada"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		Handlers(context.Background(), s, nil, nil).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("service failure is a 500", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("Capture", mock.Anything, "p1", http.MethodPost, mock.Anything, mock.Anything).
			Return("", fmt.Errorf("dispatching captured webhook: connection refused"))

		w := serve(t, s, http.MethodPost, "/relay/p1", `{}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var resp errorResponse
		decode(t, w, &resp)
		assert.Contains(t, resp.Error, "connection refused")
	})
}

func TestGetWebhooks(t *testing.T) {
	t.Run("passes filter and returns the page", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("List", mock.Anything, webhook.ListFilter{ProjectID: "p1", Limit: 2, Offset: 1}).Return(webhook.Page{
			Webhooks: []webhook.Webhook{{ID: "b", ProjectID: "p1", Status: webhook.Received}},
			Total:    3,
			Limit:    2,
			Offset:   1,
		}, nil)

		w := serve(t, s, http.MethodGet, "/webhooks?projectId=p1&limit=2&offset=1", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var resp listResponse
		decode(t, w, &resp)
		assert.Equal(t, 3, resp.Total)
		assert.Equal(t, 2, resp.Limit)
		assert.Equal(t, 1, resp.Offset)
		require.Len(t, resp.Webhooks, 1)
		assert.Equal(t, webhook.Received, resp.Webhooks[0].Status)
	})

	t.Run("defaults", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("List", mock.Anything, webhook.ListFilter{Limit: webhook.DefaultListLimit}).
			Return(webhook.Page{Webhooks: []webhook.Webhook{}, Limit: webhook.DefaultListLimit}, nil)

		w := serve(t, s, http.MethodGet, "/webhooks", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"webhooks":[],"total":0,"limit":50,"offset":0}`, w.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		w := serve(t, mocks.NewUseCase(t), http.MethodGet, "/webhooks?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetFailedWebhooks(t *testing.T) {
	dlqAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := mocks.NewUseCase(t)
	s.On("ListFailed", mock.Anything).Return([]webhook.Webhook{
		{
			ID:           "a",
			ProjectID:    "p1",
			Status:       webhook.DLQ,
			Body:         json.RawMessage(`{"secret":true}`),
			TargetURL:    "http://target",
			ErrorMessage: "HTTP 404: Not Found",
			DLQAt:        &dlqAt,
		},
		{ID: "b", ProjectID: "p1", Status: webhook.Retrying, RetryCount: 2},
	}, nil)

	w := serve(t, s, http.MethodGet, "/webhooks/failed", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp failedResponse
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Webhooks, 2)
	assert.Equal(t, webhook.DLQ, resp.Webhooks[0].Status)
	assert.Equal(t, "HTTP 404: Not Found", resp.Webhooks[0].ErrorMessage)
	assert.Equal(t, 2, resp.Webhooks[1].RetryCount)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestGetWebhook(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("Get", mock.Anything, "wh-1").Return(webhook.Webhook{
			ID:        "wh-1",
			ProjectID: "p1",
			Body:      json.RawMessage(`{"a":1}`),
			Status:    webhook.Forwarded,
		}, nil)

		w := serve(t, s, http.MethodGet, "/webhooks/wh-1", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var wh webhook.Webhook
		decode(t, w, &wh)
		assert.Equal(t, webhook.Forwarded, wh.Status)
		assert.JSONEq(t, `{"a":1}`, string(wh.Body))
	})

	t.Run("unknown id", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("Get", mock.Anything, "nope").Return(webhook.Webhook{}, fmt.Errorf("getting webhook: %w", webhook.ErrNotFound))

		w := serve(t, s, http.MethodGet, "/webhooks/nope", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"Webhook not found"}`, w.Body.String())
	})
}

func TestPostReplay(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("Replay", mock.Anything, "wh-1", "https://example.com/hook").Return(nil)

		w := serve(t, s, http.MethodPost, "/webhooks/wh-1/replay", `{"targetUrl":"https://example.com/hook"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"webhookId":"wh-1","status":"accepted"}`, w.Body.String())
	})

	t.Run("invalid target", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("Replay", mock.Anything, "wh-1", "ftp://x").Return(fmt.Errorf("%w: targetUrl must be an http or https URL", webhook.ErrInvalidInput))

		w := serve(t, s, http.MethodPost, "/webhooks/wh-1/replay", `{"targetUrl":"ftp://x"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := serve(t, mocks.NewUseCase(t), http.MethodPost, "/webhooks/wh-1/replay", `not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("Replay", mock.Anything, "nope", "https://example.com").Return(fmt.Errorf("getting webhook: %w", webhook.ErrNotFound))

		w := serve(t, s, http.MethodPost, "/webhooks/nope/replay", `{"targetUrl":"https://example.com"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPostRetry(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("ManualRetry", mock.Anything, "wh-1").Return(nil)

		w := serve(t, s, http.MethodPost, "/webhooks/wh-1/retry", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var resp retryResponse
		decode(t, w, &resp)
		assert.Equal(t, "wh-1", resp.WebhookID)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("no prior target", func(t *testing.T) {
		s := mocks.NewUseCase(t)
		s.On("ManualRetry", mock.Anything, "wh-1").Return(fmt.Errorf("%w: webhook has no target URL to retry", webhook.ErrInvalidState))

		w := serve(t, s, http.MethodPost, "/webhooks/wh-1/retry", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp errorResponse
		decode(t, w, &resp)
		assert.Contains(t, resp.Error, "no target URL")
	})
}
