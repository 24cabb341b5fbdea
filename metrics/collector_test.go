package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	queuememory "github.com/marcelsud/webhook-relay/queue/memory"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/marcelsud/webhook-relay/webhook/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func seededCollector(t *testing.T) *StoreCollector {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRepository()
	records := []webhook.Webhook{
		{ID: "a", Status: webhook.Forwarded, ForwardedAt: ago(30 * time.Second)},
		{ID: "b", Status: webhook.Forwarded, ForwardedAt: ago(3 * time.Minute)},
		{ID: "c", Status: webhook.Forwarded, ForwardedAt: ago(10 * time.Minute)},
		{ID: "d", Status: webhook.Forwarded, ForwardedAt: ago(time.Hour)},
		{ID: "e", Status: webhook.DLQ, ForwardedAt: ago(10 * time.Second)},
		{ID: "f", Status: webhook.Received},
	}
	for _, wh := range records {
		wh.Body = json.RawMessage("null")
		require.NoError(t, repo.Save(ctx, wh))
	}

	q := queuememory.New()
	require.NoError(t, q.SetWorkerHeartbeat(ctx, "w-1", webhook.TopicForward, "idle"))

	c := NewStoreCollector(repo, q, q)
	c.now = func() time.Time { return now }
	return c
}

func TestStoreCollector(t *testing.T) {
	ctx := context.Background()
	c := seededCollector(t)

	t.Run("status counts include every status", func(t *testing.T) {
		counts, err := c.GetStatusCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), counts["forwarded"])
		assert.Equal(t, int64(1), counts["dlq"])
		assert.Equal(t, int64(1), counts["received"])
		assert.Equal(t, int64(0), counts["retrying"])
		assert.Equal(t, int64(0), counts["failed"])
	})

	t.Run("throughput windows", func(t *testing.T) {
		tp, err := c.GetThroughput(ctx)
		require.NoError(t, err)
		assert.Equal(t, ThroughputMetrics{LastMinute: 1, LastFiveMinutes: 2, LastFifteenMinutes: 3}, tp)
	})

	t.Run("collect", func(t *testing.T) {
		m, err := c.Collect(ctx)
		require.NoError(t, err)
		assert.Len(t, m.Workers[webhook.TopicForward], 1)
		assert.Contains(t, m.QueueLengths, "scheduled")
		assert.Equal(t, now, m.Timestamp)
	})
}

func TestOTelExporter(t *testing.T) {
	exporter, err := NewOTelExporter(seededCollector(t))
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	exporter.RecordDeadLetter(context.Background(), 404)

	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "webhook_status_count")
	assert.Contains(t, string(body), `webhook_status="forwarded"`)
	assert.Contains(t, string(body), "webhook_throughput")
	assert.Contains(t, string(body), "webhook_deadletter")
}
