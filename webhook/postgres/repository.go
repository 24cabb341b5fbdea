package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/rs/zerolog"
)

/*
PostgreSQL implementation of webhook.Repository

- One row per webhook in the webhooks table
- Save is an upsert that only touches delivery-outcome columns on conflict,
  so capture fields stay write-once even if a caller sends a modified copy
- headers are JSONB; body is JSON so the captured text is kept byte for byte
- List skips rows that cannot be decoded and logs them
*/

const (
	createTableQuery = `
		CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			method TEXT NOT NULL,
			headers JSONB NOT NULL DEFAULT '{}',
			body JSON,
			received_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			target_url TEXT NOT NULL DEFAULT '',
			forwarded_at TIMESTAMPTZ,
			error_message TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_retry_at TIMESTAMPTZ,
			dlq_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS webhooks_received_at_idx ON webhooks (received_at DESC)
	`

	selectColumns = `id, project_id, method, headers, body, received_at, status, target_url,
		forwarded_at, error_message, retry_count, last_retry_at, dlq_at`

	selectQuery = `SELECT ` + selectColumns + ` FROM webhooks WHERE id = $1`

	listQuery = `SELECT ` + selectColumns + ` FROM webhooks ORDER BY received_at DESC`

	upsertQuery = `
		INSERT INTO webhooks (id, project_id, method, headers, body, received_at, status, target_url,
			forwarded_at, error_message, retry_count, last_retry_at, dlq_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			target_url = EXCLUDED.target_url,
			forwarded_at = EXCLUDED.forwarded_at,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			last_retry_at = EXCLUDED.last_retry_at,
			dlq_at = EXCLUDED.dlq_at
	`
)

type Repository struct {
	DB     *sql.DB
	Logger zerolog.Logger
}

// NewRepository creates a repository with the default pool (25, 5, 5 min)
func NewRepository(connectionString string) (*Repository, error) {
	return NewRepositoryWithPoolConfig(connectionString, 25, 5, 5)
}

// NewRepositoryWithPoolConfig creates a repository with a custom pool
// maxOpenConns: max simultaneous connections (0 = unlimited)
// maxIdleConns: max idle connections kept in the pool
// maxLifeMinutes: max minutes a connection may be reused
func NewRepositoryWithPoolConfig(connectionString string, maxOpenConns, maxIdleConns, maxLifeMinutes int) (*Repository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLifeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(maxLifeMinutes) * time.Minute)
	}

	return &Repository{
		DB: db,
	}, nil
}

// Get fetches a webhook by id
func (r *Repository) Get(ctx context.Context, id string) (webhook.Webhook, error) {
	wh, err := scanWebhook(r.DB.QueryRowContext(ctx, selectQuery, id))
	if err == sql.ErrNoRows {
		return webhook.Webhook{}, fmt.Errorf("%w: %s", webhook.ErrNotFound, id)
	}
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("selecting webhook: %w", err)
	}
	return wh, nil
}

// List returns all webhooks, newest first
func (r *Repository) List(ctx context.Context) ([]webhook.Webhook, error) {
	rows, err := r.DB.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("selecting webhooks: %w", err)
	}
	defer rows.Close()

	webhooks := []webhook.Webhook{}
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if errors.Is(err, webhook.ErrCorruptRecord) {
			r.Logger.Warn().Err(err).Msg("skipping unreadable webhook row")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scanning webhook: %w", err)
		}
		webhooks = append(webhooks, wh)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhooks: %w", err)
	}

	return webhooks, nil
}

// Save inserts the webhook or updates its delivery-outcome columns
func (r *Repository) Save(ctx context.Context, wh webhook.Webhook) error {
	headers, err := json.Marshal(wh.Headers)
	if err != nil {
		return fmt.Errorf("marshaling headers: %w", err)
	}

	var body interface{}
	if len(wh.Body) > 0 {
		body = []byte(wh.Body)
	}

	_, err = r.DB.ExecContext(ctx, upsertQuery,
		wh.ID,
		wh.ProjectID,
		wh.Method,
		headers,
		body,
		wh.ReceivedAt,
		wh.Status.String(),
		wh.TargetURL,
		nullTime(wh.ForwardedAt),
		wh.ErrorMessage,
		wh.RetryCount,
		nullTime(wh.LastRetryAt),
		nullTime(wh.DLQAt),
	)
	if err != nil {
		return fmt.Errorf("saving webhook: %w", err)
	}

	return nil
}

// Close closes the database connection
func (r *Repository) Close(ctx context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// CreateTable creates the webhooks table and index if missing
func (r *Repository) CreateTable(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, createTableQuery)
	if err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhook(s scanner) (webhook.Webhook, error) {
	var (
		wh          webhook.Webhook
		headers     []byte
		body        []byte
		status      string
		forwardedAt sql.NullTime
		lastRetryAt sql.NullTime
		dlqAt       sql.NullTime
	)

	err := s.Scan(
		&wh.ID,
		&wh.ProjectID,
		&wh.Method,
		&headers,
		&body,
		&wh.ReceivedAt,
		&status,
		&wh.TargetURL,
		&forwardedAt,
		&wh.ErrorMessage,
		&wh.RetryCount,
		&lastRetryAt,
		&dlqAt,
	)
	if err != nil {
		return webhook.Webhook{}, err
	}

	wh.Headers = make(map[string][]string)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &wh.Headers); err != nil {
			return webhook.Webhook{}, fmt.Errorf("%w: webhook %s: unmarshaling headers: %v", webhook.ErrCorruptRecord, wh.ID, err)
		}
	}
	wh.Body = json.RawMessage("null")
	if len(body) > 0 {
		wh.Body = json.RawMessage(body)
	}
	if wh.Status, err = webhook.ParseStatus(status); err != nil {
		return webhook.Webhook{}, fmt.Errorf("webhook %s: %w", wh.ID, err)
	}
	wh.ForwardedAt = timePtr(forwardedAt)
	wh.LastRetryAt = timePtr(lastRetryAt)
	wh.DLQAt = timePtr(dlqAt)

	return wh, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
