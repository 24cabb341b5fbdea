package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-relay/queue"
	"github.com/rs/zerolog"
)

const (
	DefaultConcurrency = 4
	heartbeatInterval  = 15 * time.Second
	errorBackoff       = time.Second

	statusIdle       = "idle"
	statusProcessing = "processing"
)

/* Handler processes one message
 * Returning nil acknowledges the message; an error leaves it pending for redelivery
 */
type Handler func(ctx context.Context, msg queue.Message) error

/* Pool runs a fixed number of consumers per registered topic
 * Each consumer polls the queue, dispatches to the topic handler and reports heartbeats
 */
type Pool struct {
	consumer    queue.Consumer
	heartbeats  queue.Heartbeats
	concurrency int
	id          string
	logger      zerolog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
}

// Option configures a Pool
type Option func(*Pool)

// WithConcurrency sets the number of consumers per topic
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithHeartbeats enables liveness reporting
func WithHeartbeats(hb queue.Heartbeats) Option {
	return func(p *Pool) { p.heartbeats = hb }
}

// WithLogger sets the pool logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithID sets the prefix of consumer ids; defaults to a random one
func WithID(id string) Option {
	return func(p *Pool) {
		if id != "" {
			p.id = id
		}
	}
}

// NewPool creates a pool reading from consumer
func NewPool(consumer queue.Consumer, opts ...Option) *Pool {
	p := &Pool{
		consumer:    consumer,
		concurrency: DefaultConcurrency,
		id:          "worker-" + uuid.NewString()[:8],
		logger:      zerolog.Nop(),
		handlers:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle registers h for topic, replacing any previous handler
func (p *Pool) Handle(topic string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = h
}

// Topics returns the registered topics
func (p *Pool) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, 0, len(p.handlers))
	for t := range p.handlers {
		topics = append(topics, t)
	}
	return topics
}

// Run blocks until ctx is done and every consumer has returned
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	handlers := make(map[string]Handler, len(p.handlers))
	for t, h := range p.handlers {
		handlers[t] = h
	}
	p.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("starting worker pool: no handlers registered")
	}

	p.logger.Info().
		Str("pool_id", p.id).
		Int("concurrency", p.concurrency).
		Int("topics", len(handlers)).
		Msg("worker pool started")

	var wg sync.WaitGroup
	for topic, h := range handlers {
		for i := 0; i < p.concurrency; i++ {
			wg.Add(1)
			go func(topic string, h Handler, n int) {
				defer wg.Done()
				p.consume(ctx, fmt.Sprintf("%s-%d", p.id, n), topic, h)
			}(topic, h, i)
		}
	}
	wg.Wait()

	p.logger.Info().Str("pool_id", p.id).Msg("worker pool stopped")
	return nil
}

func (p *Pool) consume(ctx context.Context, workerID, topic string, h Handler) {
	log := p.logger.With().Str("worker_id", workerID).Str("topic", topic).Logger()
	var lastBeat time.Time

	for ctx.Err() == nil {
		if time.Since(lastBeat) >= heartbeatInterval {
			p.beat(ctx, workerID, topic, statusIdle)
			lastBeat = time.Now()
		}

		msgs, err := p.consumer.Consume(ctx, topic)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("consuming messages")
			sleep(ctx, errorBackoff)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		p.beat(ctx, workerID, topic, statusProcessing)
		for _, msg := range msgs {
			p.process(ctx, log, h, msg)
		}
		p.beat(ctx, workerID, topic, statusIdle)
		lastBeat = time.Now()
	}
}

// process runs the handler and acks on success or panic
func (p *Pool) process(ctx context.Context, log zerolog.Logger, h Handler, msg queue.Message) {
	ack := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("message_id", msg.ID).Msg("handler panicked, dropping message")
			}
		}()
		if err := h(ctx, msg); err != nil {
			ack = false
			log.Error().Err(err).Str("message_id", msg.ID).Int("attempt", msg.Attempt).Msg("handler failed, message left pending")
		}
	}()

	if !ack {
		return
	}
	if err := p.consumer.Ack(ctx, msg); err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("acknowledging message")
	}
}

func (p *Pool) beat(ctx context.Context, workerID, topic, status string) {
	if p.heartbeats == nil {
		return
	}
	if err := p.heartbeats.SetWorkerHeartbeat(ctx, workerID, topic, status); err != nil && ctx.Err() == nil {
		p.logger.Warn().Err(err).Str("worker_id", workerID).Msg("heartbeat failed")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
