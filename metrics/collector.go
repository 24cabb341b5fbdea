package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-relay/queue"
	"github.com/marcelsud/webhook-relay/webhook"
)

// StoreCollector implements Collector over any record store and queue backend
type StoreCollector struct {
	webhooks   webhook.Reader
	queue      queue.Stats
	heartbeats queue.Heartbeats
	now        func() time.Time
}

// NewStoreCollector creates a collector; heartbeats may be nil
func NewStoreCollector(webhooks webhook.Reader, stats queue.Stats, heartbeats queue.Heartbeats) *StoreCollector {
	return &StoreCollector{
		webhooks:   webhooks,
		queue:      stats,
		heartbeats: heartbeats,
		now:        time.Now,
	}
}

// Collect gathers all metrics
func (c *StoreCollector) Collect(ctx context.Context) (Metrics, error) {
	queueLengths, err := c.GetQueueLengths(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting queue lengths: %w", err)
	}

	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting status counts: %w", err)
	}

	throughput, err := c.GetThroughput(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting throughput: %w", err)
	}

	workers, err := c.GetActiveWorkers(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting active workers: %w", err)
	}

	return Metrics{
		QueueLengths: queueLengths,
		StatusCounts: statusCounts,
		Throughput:   throughput,
		Workers:      workers,
		Timestamp:    c.now(),
	}, nil
}

// GetQueueLengths returns the backlog per topic
func (c *StoreCollector) GetQueueLengths(ctx context.Context) (map[string]int64, error) {
	if c.queue == nil {
		return map[string]int64{}, nil
	}
	return c.queue.Lengths(ctx)
}

// GetStatusCounts returns counts of webhooks grouped by status
func (c *StoreCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	statusCounts := map[string]int64{}
	for s := webhook.Received; s <= webhook.Failed; s++ {
		statusCounts[s.String()] = 0
	}

	all, err := c.webhooks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	for _, wh := range all {
		statusCounts[wh.Status.String()]++
	}

	return statusCounts, nil
}

// GetThroughput counts forwarded webhooks by how recently they were forwarded
func (c *StoreCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	all, err := c.webhooks.List(ctx)
	if err != nil {
		return ThroughputMetrics{}, fmt.Errorf("listing webhooks: %w", err)
	}

	now := c.now()
	var tp ThroughputMetrics
	for _, wh := range all {
		if wh.Status != webhook.Forwarded || wh.ForwardedAt == nil {
			continue
		}
		age := now.Sub(*wh.ForwardedAt)
		if age < 0 {
			age = 0
		}
		if age <= time.Minute {
			tp.LastMinute++
		}
		if age <= 5*time.Minute {
			tp.LastFiveMinutes++
		}
		if age <= 15*time.Minute {
			tp.LastFifteenMinutes++
		}
	}
	return tp, nil
}

// GetActiveWorkers returns workers with a live heartbeat, grouped by topic
func (c *StoreCollector) GetActiveWorkers(ctx context.Context) (map[string][]WorkerInfo, error) {
	workers := make(map[string][]WorkerInfo)
	if c.heartbeats == nil {
		return workers, nil
	}

	byTopic, err := c.heartbeats.GetAllActiveWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting heartbeats: %w", err)
	}
	for topic, beats := range byTopic {
		for _, hb := range beats {
			workers[topic] = append(workers[topic], WorkerInfo{
				WorkerID:      hb.WorkerID,
				Topic:         hb.Topic,
				Status:        hb.Status,
				LastHeartbeat: hb.LastHeartbeat,
			})
		}
	}
	return workers, nil
}
