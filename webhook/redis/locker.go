package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix       = "lock:webhook"
	lockPollInterval = 50 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

/* Locker implements webhook.Locker across processes
 * The TTL bounds how long a crashed holder can block an id
 */
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker creates a Redis-backed per-webhook lock
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{
		client: client,
		ttl:    ttl,
	}
}

// Lock polls SET NX until the lock is acquired or ctx is done
func (l *Locker) Lock(ctx context.Context, id string) (func(), error) {
	key := fmt.Sprintf("%s:%s", lockPrefix, id)
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock for webhook %s: %w", id, err)
		}
		if ok {
			return func() {
				// Released with a fresh context so a cancelled caller still unlocks
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				releaseScript.Run(releaseCtx, l.client, []string{key}, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("locking webhook %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}
