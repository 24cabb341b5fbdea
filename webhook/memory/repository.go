package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/marcelsud/webhook-relay/webhook"
)

// Repository is an in-process webhook.Repository for development and tests.
// Records are copied on the way in and out so callers never share state.
type Repository struct {
	mu       sync.RWMutex
	webhooks map[string]webhook.Webhook
}

// NewRepository creates an empty in-memory repository
func NewRepository() *Repository {
	return &Repository{
		webhooks: make(map[string]webhook.Webhook),
	}
}

// Get returns a copy of the stored webhook
func (r *Repository) Get(ctx context.Context, id string) (webhook.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wh, ok := r.webhooks[id]
	if !ok {
		return webhook.Webhook{}, fmt.Errorf("%w: %s", webhook.ErrNotFound, id)
	}
	return clone(wh), nil
}

// List returns copies of all stored webhooks
func (r *Repository) List(ctx context.Context) ([]webhook.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]webhook.Webhook, 0, len(r.webhooks))
	for _, wh := range r.webhooks {
		all = append(all, clone(wh))
	}
	return all, nil
}

// Save replaces the stored webhook
func (r *Repository) Save(ctx context.Context, wh webhook.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[wh.ID] = clone(wh)
	return nil
}

// Close is a no-op
func (r *Repository) Close(ctx context.Context) error {
	return nil
}

func clone(wh webhook.Webhook) webhook.Webhook {
	out := wh
	if wh.Headers != nil {
		out.Headers = make(map[string][]string, len(wh.Headers))
		for k, v := range wh.Headers {
			out.Headers[k] = append([]string(nil), v...)
		}
	}
	if wh.Body != nil {
		out.Body = append(json.RawMessage(nil), wh.Body...)
	}
	out.ForwardedAt = cloneTime(wh.ForwardedAt)
	out.LastRetryAt = cloneTime(wh.LastRetryAt)
	out.DLQAt = cloneTime(wh.DLQAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
