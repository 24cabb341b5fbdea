package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-relay/queue"
	"github.com/redis/go-redis/v9"
)

/* Redis Streams implementation of queue.Queue
 * One stream per topic, one shared consumer group across workers
 * Delayed messages wait in a sorted set scored by due time
 */

const (
	streamPrefix   = "queue"         // Stream naming: queue:{topic}
	delayedKey     = "queue:delayed" // Sorted set of scheduled envelopes
	consumerGroup  = "relay-workers"
	messageField   = "message"
	consumeCount   = 10
	consumeBlock   = 1 * time.Second
	claimMinIdle   = 1 * time.Minute
	promoteBatch   = 100
	scheduledTopic = "scheduled"
)

type Queue struct {
	client   *redis.Client
	consumer string
	topics   []string
}

// scheduled wraps a delayed message so identical payloads stay distinct zset members
type scheduled struct {
	Nonce   string        `json:"nonce"`
	Message queue.Message `json:"message"`
}

// New creates a queue reading as consumer; topics are reported by Lengths
func New(client *redis.Client, consumer string, topics ...string) *Queue {
	if consumer == "" {
		consumer = "worker-" + uuid.NewString()
	}
	return &Queue{
		client:   client,
		consumer: consumer,
		topics:   topics,
	}
}

// Publish appends msg to its topic stream
func (q *Queue) Publish(ctx context.Context, msg queue.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	_, err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(msg.Topic),
		Values: map[string]interface{}{messageField: data},
	}).Result()
	if err != nil {
		return fmt.Errorf("adding to stream: %w", err)
	}
	return nil
}

// PublishAt stores msg in the delayed set until at
func (q *Queue) PublishAt(ctx context.Context, msg queue.Message, at time.Time) error {
	if !at.After(time.Now()) {
		return q.Publish(ctx, msg)
	}

	data, err := json.Marshal(scheduled{Nonce: uuid.NewString(), Message: msg})
	if err != nil {
		return fmt.Errorf("encoding scheduled message: %w", err)
	}

	err = q.client.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("scheduling message: %w", err)
	}
	return nil
}

// Consume promotes due messages, reclaims stale ones, then reads new entries for topic
func (q *Queue) Consume(ctx context.Context, topic string) ([]queue.Message, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	stream := streamKey(topic)
	if err := q.ensureGroup(ctx, stream); err != nil {
		return nil, err
	}

	// Entries left pending by a crashed consumer are taken over
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    consumerGroup,
		Consumer: q.consumer,
		MinIdle:  claimMinIdle,
		Start:    "0-0",
		Count:    consumeCount,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("claiming stale messages: %w", err)
	}
	if len(claimed) > 0 {
		return decodeAll(topic, claimed), nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: q.consumer,
		Streams:  []string{stream, ">"},
		Count:    consumeCount,
		Block:    consumeBlock,
	}).Result()
	if err == redis.Nil {
		// No messages available
		return []queue.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading from stream: %w", err)
	}
	if len(streams) == 0 {
		return []queue.Message{}, nil
	}

	return decodeAll(topic, streams[0].Messages), nil
}

// Ack acknowledges and deletes the stream entry so stream length tracks backlog
func (q *Queue) Ack(ctx context.Context, msg queue.Message) error {
	if msg.ID == "" {
		return nil
	}
	stream := streamKey(msg.Topic)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, stream, consumerGroup, msg.ID)
		pipe.XDel(ctx, stream, msg.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("acknowledging message: %w", err)
	}
	return nil
}

// Lengths reports the backlog of each configured topic and the delayed set size
func (q *Queue) Lengths(ctx context.Context) (map[string]int64, error) {
	lengths := make(map[string]int64, len(q.topics)+1)
	for _, topic := range q.topics {
		n, err := q.client.XLen(ctx, streamKey(topic)).Result()
		if err != nil && err != redis.Nil {
			// Continue even if one stream fails
			continue
		}
		lengths[topic] = n
	}

	n, err := q.client.ZCard(ctx, delayedKey).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("counting scheduled messages: %w", err)
	}
	lengths[scheduledTopic] = n
	return lengths, nil
}

// Close is a no-op; the shared client is closed by its owner
func (q *Queue) Close(ctx context.Context) error {
	return nil
}

// promoteDue moves due delayed messages onto their streams.
// ZREM acts as the claim so concurrent consumers never promote twice.
func (q *Queue) promoteDue(ctx context.Context) error {
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", time.Now().UnixMilli()),
		Count: promoteBatch,
	}).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("reading scheduled messages: %w", err)
	}

	for _, member := range members {
		removed, err := q.client.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return fmt.Errorf("claiming scheduled message: %w", err)
		}
		if removed == 0 {
			continue
		}

		var s scheduled
		if err := json.Unmarshal([]byte(member), &s); err != nil {
			continue
		}
		if err := q.Publish(ctx, s.Message); err != nil {
			return fmt.Errorf("promoting scheduled message: %w", err)
		}
	}
	return nil
}

func (q *Queue) ensureGroup(ctx context.Context, stream string) error {
	err := q.client.XGroupCreateMkStream(ctx, stream, consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func decodeAll(topic string, entries []redis.XMessage) []queue.Message {
	messages := make([]queue.Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := decode(topic, entry)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func decode(topic string, entry redis.XMessage) (queue.Message, error) {
	raw, ok := entry.Values[messageField].(string)
	if !ok {
		return queue.Message{}, errors.New("message field missing")
	}
	var msg queue.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return queue.Message{}, fmt.Errorf("decoding message: %w", err)
	}
	msg.ID = entry.ID
	msg.Topic = topic
	return msg, nil
}

func streamKey(topic string) string {
	return fmt.Sprintf("%s:%s", streamPrefix, topic)
}
