package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

/* Redis implementation of webhook.Repository
 * Uses Redis Hashes for the record fields
 * Uses a Sorted Set as the webhooks collection index, scored by receivedAt
 * List skips hashes that cannot be decoded and logs them
 */

const (
	hashPrefix      = "webhook"  // Hash naming: webhook:{webhook_id}
	collectionKey   = "webhooks" // Sorted set of every webhook id
	timestampLayout = time.RFC3339Nano
)

type Repository struct {
	client *redis.Client
	Logger zerolog.Logger
}

// NewClient connects to Redis and verifies the connection
func NewClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return client, nil
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int) (*Repository, error) {
	client, err := NewClient(addr, password, db)
	if err != nil {
		return nil, err
	}
	return NewRepositoryWithClient(client), nil
}

// NewRepositoryWithClient creates a repository sharing an existing client
func NewRepositoryWithClient(client *redis.Client) *Repository {
	return &Repository{
		client: client,
	}
}

// Save writes every field of the webhook and indexes it in the collection
func (r *Repository) Save(ctx context.Context, wh webhook.Webhook) error {
	hashKey := fmt.Sprintf("%s:%s", hashPrefix, wh.ID)

	headersJSON, err := json.Marshal(wh.Headers)
	if err != nil {
		return fmt.Errorf("marshaling headers: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey, map[string]interface{}{
			"id":            wh.ID,
			"project_id":    wh.ProjectID,
			"method":        wh.Method,
			"headers":       string(headersJSON),
			"body":          string(wh.Body),
			"received_at":   wh.ReceivedAt.Format(timestampLayout),
			"status":        wh.Status.String(),
			"target_url":    wh.TargetURL,
			"forwarded_at":  formatTime(wh.ForwardedAt),
			"error_message": wh.ErrorMessage,
			"retry_count":   wh.RetryCount,
			"last_retry_at": formatTime(wh.LastRetryAt),
			"dlq_at":        formatTime(wh.DLQAt),
		})
		pipe.ZAdd(ctx, collectionKey, redis.Z{
			Score:  float64(wh.ReceivedAt.UnixMilli()),
			Member: wh.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing webhook: %w", err)
	}

	return nil
}

// Get retrieves a webhook by ID from Redis hash
func (r *Repository) Get(ctx context.Context, id string) (webhook.Webhook, error) {
	hashKey := fmt.Sprintf("%s:%s", hashPrefix, id)

	data, err := r.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	if len(data) == 0 {
		return webhook.Webhook{}, fmt.Errorf("%w: %s", webhook.ErrNotFound, id)
	}

	return parseWebhook(data)
}

// List returns every indexed webhook, newest first
func (r *Repository) List(ctx context.Context) ([]webhook.Webhook, error) {
	ids, err := r.client.ZRevRange(ctx, collectionKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing webhook ids: %w", err)
	}
	if len(ids) == 0 {
		return []webhook.Webhook{}, nil
	}

	// Use pipeline for efficient batch operations
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, fmt.Sprintf("%s:%s", hashPrefix, id))
	}

	_, err = pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("executing pipeline: %w", err)
	}

	webhooks := make([]webhook.Webhook, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			// Index entry without a hash; record expired or was removed
			continue
		}
		wh, err := parseWebhook(data)
		if errors.Is(err, webhook.ErrCorruptRecord) {
			r.Logger.Warn().Err(err).Msg("skipping unreadable webhook hash")
			continue
		}
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, wh)
	}

	return webhooks, nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

// Helper functions

func parseWebhook(data map[string]string) (webhook.Webhook, error) {
	headers := make(map[string][]string)
	if headersStr, ok := data["headers"]; ok && headersStr != "" {
		if err := json.Unmarshal([]byte(headersStr), &headers); err != nil {
			return webhook.Webhook{}, fmt.Errorf("%w: webhook %s: unmarshaling headers: %v", webhook.ErrCorruptRecord, data["id"], err)
		}
	}

	receivedAt, err := time.Parse(timestampLayout, data["received_at"])
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("%w: webhook %s: parsing received_at: %v", webhook.ErrCorruptRecord, data["id"], err)
	}

	status, err := webhook.ParseStatus(data["status"])
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("webhook %s: %w", data["id"], err)
	}

	retryCount, _ := strconv.Atoi(data["retry_count"])

	body := json.RawMessage(data["body"])
	if len(body) == 0 {
		body = json.RawMessage("null")
	}

	return webhook.Webhook{
		ID:           data["id"],
		ProjectID:    data["project_id"],
		Method:       data["method"],
		Headers:      headers,
		Body:         body,
		ReceivedAt:   receivedAt,
		Status:       status,
		TargetURL:    data["target_url"],
		ForwardedAt:  parseTime(data["forwarded_at"]),
		ErrorMessage: data["error_message"],
		RetryCount:   retryCount,
		LastRetryAt:  parseTime(data["last_retry_at"]),
		DLQAt:        parseTime(data["dlq_at"]),
	}, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timestampLayout)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
