package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marcelsud/webhook-relay/config"
	"github.com/marcelsud/webhook-relay/internal/bootstrap"
	"github.com/marcelsud/webhook-relay/notify"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
* End-to-end scenarios over the in-memory backends: the HTTP API, the worker pool
* and the delivery engine run together exactly as cmd/api wires them
 */

type relay struct {
	app *bootstrap.App
	srv *httptest.Server
}

func startRelay(t *testing.T, projectsYAML string) *relay {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &config.Config{
		Port:              "0",
		StoreBackend:      config.BackendMemory,
		QueueBackend:      config.BackendMemory,
		DeliveryTimeout:   2 * time.Second,
		RetryMaxAttempts:  3,
		RetryDelay:        20 * time.Millisecond,
		RetryBackoff:      "fixed",
		RetryMaxDelay:     time.Second,
		WorkerEnabled:     true,
		WorkerConcurrency: 2,
		LockTTL:           time.Second,
	}
	if projectsYAML != "" {
		cfg.ProjectsFile = filepath.Join(t.TempDir(), "projects.yaml")
		require.NoError(t, os.WriteFile(cfg.ProjectsFile, []byte(projectsYAML), 0o600))
	}

	app, err := bootstrap.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		app.Workers().Run(ctx)
	}()

	srv := httptest.NewServer(Handlers(ctx, app.Service, app.Hub, app.Metrics.Handler()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
		app.Close(context.Background())
	})
	return &relay{app: app, srv: srv}
}

func (r *relay) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, r.srv.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (r *relay) capture(t *testing.T, projectID, body string) string {
	t.Helper()
	code, data := r.do(t, http.MethodPost, "/relay/"+projectID, body)
	require.Equal(t, http.StatusOK, code, string(data))
	var resp captureResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp.WebhookID
}

func (r *relay) record(t *testing.T, id string) (webhook.Webhook, bool) {
	t.Helper()
	code, data := r.do(t, http.MethodGet, "/webhooks/"+id, "")
	if code != http.StatusOK {
		return webhook.Webhook{}, false
	}
	var wh webhook.Webhook
	require.NoError(t, json.Unmarshal(data, &wh))
	return wh, true
}

func (r *relay) waitFor(t *testing.T, id string, cond func(webhook.Webhook) bool) webhook.Webhook {
	t.Helper()
	var last webhook.Webhook
	require.Eventually(t, func() bool {
		wh, ok := r.record(t, id)
		last = wh
		return ok && cond(wh)
	}, 5*time.Second, 20*time.Millisecond)
	return last
}

func hasStatus(s webhook.Status) func(webhook.Webhook) bool {
	return func(wh webhook.Webhook) bool { return wh.Status == s }
}

type target struct {
	srv    *httptest.Server
	hits   atomic.Int32
	bodies chan []byte
}

func newTarget(t *testing.T, status int) *target {
	tg := &target{bodies: make(chan []byte, 16)}
	tg.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		tg.hits.Add(1)
		select {
		case tg.bodies <- b:
		default:
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(tg.srv.Close)
	return tg
}

func TestScenarios(t *testing.T) {
	r := startRelay(t, "")

	t.Run("capture is retrievable as received", func(t *testing.T) {
		id := r.capture(t, "p1", `{"a":1}`)
		require.NotEmpty(t, id)

		wh := r.waitFor(t, id, hasStatus(webhook.Received))
		assert.Equal(t, "p1", wh.ProjectID)
		assert.JSONEq(t, `{"a":1}`, string(wh.Body))
		assert.Equal(t, http.MethodPost, wh.Method)

		_, first := r.do(t, http.MethodGet, "/webhooks/"+id, "")
		_, second := r.do(t, http.MethodGet, "/webhooks/"+id, "")
		assert.True(t, bytes.Equal(first, second))
	})

	t.Run("replay to a 2xx target forwards", func(t *testing.T) {
		tg := newTarget(t, http.StatusOK)
		id := r.capture(t, "p1", `{"order":42}`)
		r.waitFor(t, id, hasStatus(webhook.Received))

		code, data := r.do(t, http.MethodPost, "/webhooks/"+id+"/replay", `{"targetUrl":"`+tg.srv.URL+`"}`)
		require.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `{"webhookId":"`+id+`","status":"accepted"}`, string(data))

		wh := r.waitFor(t, id, hasStatus(webhook.Forwarded))
		assert.NotNil(t, wh.ForwardedAt)
		assert.Equal(t, tg.srv.URL, wh.TargetURL)
		assert.JSONEq(t, `{"order":42}`, string(<-tg.bodies))
	})

	t.Run("replay to a 4xx target dead-letters without retrying", func(t *testing.T) {
		tg := newTarget(t, http.StatusNotFound)
		id := r.capture(t, "p1", `{}`)
		r.waitFor(t, id, hasStatus(webhook.Received))

		code, _ := r.do(t, http.MethodPost, "/webhooks/"+id+"/replay", `{"targetUrl":"`+tg.srv.URL+`"}`)
		require.Equal(t, http.StatusOK, code)

		wh := r.waitFor(t, id, hasStatus(webhook.DLQ))
		assert.Contains(t, wh.ErrorMessage, "404")
		assert.NotNil(t, wh.DLQAt)

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, int32(1), tg.hits.Load())
	})

	t.Run("replay to a 5xx target retries until the budget is spent", func(t *testing.T) {
		tg := newTarget(t, http.StatusServiceUnavailable)
		id := r.capture(t, "p1", `{}`)
		r.waitFor(t, id, hasStatus(webhook.Received))

		code, _ := r.do(t, http.MethodPost, "/webhooks/"+id+"/replay", `{"targetUrl":"`+tg.srv.URL+`"}`)
		require.Equal(t, http.StatusOK, code)

		wh := r.waitFor(t, id, hasStatus(webhook.DLQ))
		assert.GreaterOrEqual(t, wh.RetryCount, 1)
		assert.Contains(t, wh.ErrorMessage, "503")
		assert.Equal(t, int32(3), tg.hits.Load())

		code, data := r.do(t, http.MethodGet, "/webhooks/failed", "")
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(data), id)
	})

	t.Run("unknown id is a 404", func(t *testing.T) {
		code, data := r.do(t, http.MethodGet, "/webhooks/does-not-exist", "")
		assert.Equal(t, http.StatusNotFound, code)
		assert.JSONEq(t, `{"error":"Webhook not found"}`, string(data))
	})

	t.Run("replay of an unknown id with a bad target is a 404", func(t *testing.T) {
		code, data := r.do(t, http.MethodPost, "/webhooks/does-not-exist/replay", `{"targetUrl":"not a url"}`)
		assert.Equal(t, http.StatusNotFound, code)
		assert.JSONEq(t, `{"error":"Webhook not found"}`, string(data))
	})

	t.Run("manual retry without a prior target is rejected", func(t *testing.T) {
		id := r.capture(t, "p1", `{}`)
		r.waitFor(t, id, hasStatus(webhook.Received))

		code, data := r.do(t, http.MethodPost, "/webhooks/"+id+"/retry", "")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, string(data), "error")
	})

	t.Run("manual retry re-delivers to the last target", func(t *testing.T) {
		tg := newTarget(t, http.StatusNotFound)
		id := r.capture(t, "p1", `{}`)
		r.waitFor(t, id, hasStatus(webhook.Received))
		r.do(t, http.MethodPost, "/webhooks/"+id+"/replay", `{"targetUrl":"`+tg.srv.URL+`"}`)
		r.waitFor(t, id, hasStatus(webhook.DLQ))

		code, _ := r.do(t, http.MethodPost, "/webhooks/"+id+"/retry", "")
		require.Equal(t, http.StatusOK, code)

		require.Eventually(t, func() bool { return tg.hits.Load() == 2 }, 5*time.Second, 20*time.Millisecond)
		wh := r.waitFor(t, id, hasStatus(webhook.DLQ))
		assert.Equal(t, 1, wh.RetryCount)
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		code, data := r.do(t, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(data), "webhook_status_count")
	})
}

func TestProjectAutoForward(t *testing.T) {
	tg := newTarget(t, http.StatusAccepted)
	r := startRelay(t, "projects:\n  - project_id: \"billing\"\n    target_url: \""+tg.srv.URL+"\"\n")

	id := r.capture(t, "billing", `{"invoice":"inv-1"}`)

	wh := r.waitFor(t, id, hasStatus(webhook.Forwarded))
	assert.Equal(t, tg.srv.URL, wh.TargetURL)
	assert.JSONEq(t, `{"invoice":"inv-1"}`, string(<-tg.bodies))
}

func TestLiveFeed(t *testing.T) {
	r := startRelay(t, "")

	wsURL := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws?projectId=feed"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return r.app.Hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	// other projects stay off this channel
	r.capture(t, "other", `{}`)
	id := r.capture(t, "feed", `{"x":1}`)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg notify.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, notify.EventWebhookUpdated, msg.Event)
	assert.Equal(t, webhook.ProjectChannel("feed"), msg.Channel)
	assert.Equal(t, id, msg.Data.ID)
	assert.Equal(t, webhook.Received, msg.Data.Status)
}
