package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-relay/queue"
	"github.com/redis/go-redis/v9"
)

const heartbeatTTL = 60 * time.Second

// SetWorkerHeartbeat stores or updates a worker's heartbeat in Redis
// The heartbeat key has a TTL of 60 seconds - if a worker doesn't send a heartbeat
// within that time, it's considered inactive
func (q *Queue) SetWorkerHeartbeat(ctx context.Context, workerID, topic, status string) error {
	key := fmt.Sprintf("worker:heartbeat:%s:%s", topic, workerID)

	heartbeat := queue.Heartbeat{
		WorkerID:      workerID,
		Topic:         topic,
		Status:        status,
		LastHeartbeat: time.Now(),
	}

	data, err := json.Marshal(heartbeat)
	if err != nil {
		return fmt.Errorf("marshaling heartbeat: %w", err)
	}

	err = q.client.Set(ctx, key, data, heartbeatTTL).Err()
	if err != nil {
		return fmt.Errorf("setting heartbeat: %w", err)
	}

	return nil
}

// GetAllActiveWorkers retrieves all active workers grouped by topic
func (q *Queue) GetAllActiveWorkers(ctx context.Context) (map[string][]queue.Heartbeat, error) {
	workersByTopic := make(map[string][]queue.Heartbeat)

	var cursor uint64
	for {
		keys, nextCursor, err := q.client.Scan(ctx, cursor, "worker:heartbeat:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning worker keys: %w", err)
		}

		for _, key := range keys {
			data, err := q.client.Get(ctx, key).Result()
			if err == redis.Nil {
				// Key expired between scan and get
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("getting worker heartbeat: %w", err)
			}

			var heartbeat queue.Heartbeat
			if err := json.Unmarshal([]byte(data), &heartbeat); err != nil {
				continue
			}

			workersByTopic[heartbeat.Topic] = append(workersByTopic[heartbeat.Topic], heartbeat)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return workersByTopic, nil
}
