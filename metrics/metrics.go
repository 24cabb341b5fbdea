package metrics

import (
	"context"
	"time"
)

// Metrics represents the current state of the relay.
type Metrics struct {
	// QueueLengths maps topic to the number of messages waiting, plus "scheduled" retries
	QueueLengths map[string]int64 `json:"queue_lengths"`

	// StatusCounts maps status name to count of webhooks in that status
	StatusCounts map[string]int64 `json:"status_counts"`

	// Throughput represents webhooks forwarded per time window
	Throughput ThroughputMetrics `json:"throughput"`

	// Workers maps topic to list of active workers
	Workers map[string][]WorkerInfo `json:"workers"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// ThroughputMetrics represents webhooks forwarded over different time windows.
type ThroughputMetrics struct {
	LastMinute         int64 `json:"last_minute"`
	LastFiveMinutes    int64 `json:"last_five_minutes"`
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

// WorkerInfo represents information about an active worker.
type WorkerInfo struct {
	WorkerID string `json:"worker_id"`
	Topic    string `json:"topic"`
	// Status is "idle" or "processing"
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Collector defines the interface for collecting metrics from the relay.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	GetQueueLengths(ctx context.Context) (map[string]int64, error)
	GetStatusCounts(ctx context.Context) (map[string]int64, error)
	GetThroughput(ctx context.Context) (ThroughputMetrics, error)
	GetActiveWorkers(ctx context.Context) (map[string][]WorkerInfo, error)
}
