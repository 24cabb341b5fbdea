//go:build integration

package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/marcelsud/webhook-relay/webhook/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()
	client, cleanup := SetupRedis(t, ctx)
	defer cleanup()

	repo := redis.NewRepositoryWithClient(client)
	received := time.Now().UTC()

	t.Run("save and get round trip", func(t *testing.T) {
		forwarded := received.Add(time.Second)
		wh := webhook.Webhook{
			ID:          "wh-1",
			ProjectID:   "proj-a",
			Method:      "POST",
			Headers:     map[string][]string{"Content-Type": {"application/json"}, "X-Multi": {"a", "b"}},
			Body:        json.RawMessage(`{"event":"user.created","id":123}`),
			ReceivedAt:  received,
			Status:      webhook.Forwarded,
			TargetURL:   "https://example.com/in",
			ForwardedAt: &forwarded,
		}
		require.NoError(t, repo.Save(ctx, wh))

		got, err := repo.Get(ctx, "wh-1")
		require.NoError(t, err)
		assert.Equal(t, wh.ProjectID, got.ProjectID)
		assert.Equal(t, wh.Headers, got.Headers)
		assert.JSONEq(t, string(wh.Body), string(got.Body))
		assert.True(t, got.ReceivedAt.Equal(received))
		assert.Equal(t, webhook.Forwarded, got.Status)
		require.NotNil(t, got.ForwardedAt)
		assert.True(t, got.ForwardedAt.Equal(forwarded))
		assert.Nil(t, got.DLQAt)
		assert.Nil(t, got.LastRetryAt)
	})

	t.Run("save overwrites outcome", func(t *testing.T) {
		got, err := repo.Get(ctx, "wh-1")
		require.NoError(t, err)

		now := time.Now().UTC()
		got.Status = webhook.DLQ
		got.ErrorMessage = "HTTP 410: Gone"
		got.DLQAt = &now
		got.RetryCount = 2
		require.NoError(t, repo.Save(ctx, got))

		updated, err := repo.Get(ctx, "wh-1")
		require.NoError(t, err)
		assert.Equal(t, webhook.DLQ, updated.Status)
		assert.Equal(t, "HTTP 410: Gone", updated.ErrorMessage)
		assert.Equal(t, 2, updated.RetryCount)
		require.NotNil(t, updated.DLQAt)
	})

	t.Run("list returns newest first", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, webhook.Webhook{
			ID:         "wh-2",
			ProjectID:  "proj-b",
			Method:     "PUT",
			Headers:    map[string][]string{},
			Body:       json.RawMessage(`null`),
			ReceivedAt: received.Add(time.Minute),
			Status:     webhook.Received,
		}))

		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "wh-2", list[0].ID)
		assert.Equal(t, "wh-1", list[1].ID)
	})

	t.Run("missing webhook", func(t *testing.T) {
		_, err := repo.Get(ctx, "does-not-exist")
		require.ErrorIs(t, err, webhook.ErrNotFound)
	})

	t.Run("unreadable status is skipped by list", func(t *testing.T) {
		require.NoError(t, client.HSet(ctx, "webhook:wh-2", "status", "bogus").Err())

		_, err := repo.Get(ctx, "wh-2")
		require.ErrorIs(t, err, webhook.ErrCorruptRecord)

		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "wh-1", list[0].ID)
	})
}
