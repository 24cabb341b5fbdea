package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcelsud/webhook-relay/queue"
)

const (
	topicBuffer  = 1024
	consumeBlock = 500 * time.Millisecond
	heartbeatTTL = 60 * time.Second

	// DefaultRedeliverAfter matches the idle time the Redis backend waits before reclaiming
	DefaultRedeliverAfter = time.Minute
)

/* Queue is an in-process queue.Queue backed by buffered channels
 * Delayed messages are held by timers until due
 * Consumed messages not acked within the redelivery window are enqueued again
 * Not durable: pending and scheduled messages are lost on exit
 */
type Queue struct {
	mu             sync.Mutex
	topics         map[string]chan queue.Message
	timers         map[*time.Timer]struct{}
	inflight       map[string]*time.Timer
	redeliverAfter time.Duration
	closed         bool
	seq            atomic.Int64
	pending        atomic.Int64

	hbMu       sync.RWMutex
	heartbeats map[string]queue.Heartbeat
}

// Option configures a Queue
type Option func(*Queue)

// WithRedeliverAfter sets how long a consumed message may stay unacked
func WithRedeliverAfter(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.redeliverAfter = d
		}
	}
}

// New creates an empty in-memory queue
func New(opts ...Option) *Queue {
	q := &Queue{
		topics:         make(map[string]chan queue.Message),
		timers:         make(map[*time.Timer]struct{}),
		inflight:       make(map[string]*time.Timer),
		redeliverAfter: DefaultRedeliverAfter,
		heartbeats:     make(map[string]queue.Heartbeat),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) topic(name string) chan queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.topics[name]
	if !ok {
		ch = make(chan queue.Message, topicBuffer)
		q.topics[name] = ch
	}
	return ch
}

// Publish enqueues msg immediately
func (q *Queue) Publish(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return fmt.Errorf("publishing to %s: queue closed", msg.Topic)
	}

	msg.ID = strconv.FormatInt(q.seq.Add(1), 10)
	select {
	case q.topic(msg.Topic) <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", msg.Topic, ctx.Err())
	}
}

// PublishAt enqueues msg once at has passed
func (q *Queue) PublishAt(ctx context.Context, msg queue.Message, at time.Time) error {
	delay := time.Until(at)
	if delay <= 0 {
		return q.Publish(ctx, msg)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("scheduling on %s: queue closed", msg.Topic)
	}

	q.pending.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		q.pending.Add(-1)
		_ = q.Publish(context.Background(), msg)
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Consume returns the next message on topic, waiting up to half a second
func (q *Queue) Consume(ctx context.Context, topic string) ([]queue.Message, error) {
	ch := q.topic(topic)
	timer := time.NewTimer(consumeBlock)
	defer timer.Stop()

	select {
	case msg := <-ch:
		q.track(msg)
		return []queue.Message{msg}, nil
	case <-timer.C:
		return []queue.Message{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// track arms the redelivery timer of a consumed message
func (q *Queue) track(msg queue.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	id := msg.ID
	q.inflight[id] = time.AfterFunc(q.redeliverAfter, func() {
		q.mu.Lock()
		_, ok := q.inflight[id]
		delete(q.inflight, id)
		q.mu.Unlock()
		if ok {
			_ = q.Publish(context.Background(), msg)
		}
	})
}

// Ack settles a consumed message so it is not delivered again
func (q *Queue) Ack(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.inflight[msg.ID]; ok {
		t.Stop()
		delete(q.inflight, msg.ID)
	}
	return nil
}

// Lengths returns ready messages per topic plus scheduled ones under "scheduled"
func (q *Queue) Lengths(ctx context.Context) (map[string]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	lengths := make(map[string]int64, len(q.topics)+1)
	for name, ch := range q.topics {
		lengths[name] = int64(len(ch))
	}
	lengths["scheduled"] = q.pending.Load()
	return lengths, nil
}

// SetWorkerHeartbeat records a consumer heartbeat
func (q *Queue) SetWorkerHeartbeat(ctx context.Context, workerID, topic, status string) error {
	q.hbMu.Lock()
	defer q.hbMu.Unlock()
	q.heartbeats[topic+":"+workerID] = queue.Heartbeat{
		WorkerID:      workerID,
		Topic:         topic,
		Status:        status,
		LastHeartbeat: time.Now(),
	}
	return nil
}

// GetAllActiveWorkers returns heartbeats newer than a minute, grouped by topic
func (q *Queue) GetAllActiveWorkers(ctx context.Context) (map[string][]queue.Heartbeat, error) {
	q.hbMu.RLock()
	defer q.hbMu.RUnlock()
	cutoff := time.Now().Add(-heartbeatTTL)
	workers := make(map[string][]queue.Heartbeat)
	for _, hb := range q.heartbeats {
		if hb.LastHeartbeat.Before(cutoff) {
			continue
		}
		workers[hb.Topic] = append(workers[hb.Topic], hb)
	}
	return workers, nil
}

// Close stops pending timers; scheduled and unacked messages are dropped
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for t := range q.timers {
		if t.Stop() {
			q.pending.Add(-1)
		}
		delete(q.timers, t)
	}
	for id, t := range q.inflight {
		t.Stop()
		delete(q.inflight, id)
	}
	return nil
}
