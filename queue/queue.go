package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

/* Message is the envelope carried between the relay and its workers
 * Attempt is the 1-based attempt number inside the current delivery cycle
 * MaxAttempts overrides the worker's attempt budget when positive
 */
type Message struct {
	ID          string          `json:"-"`
	Topic       string          `json:"topic"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// NewMessage encodes v as the payload of a first-attempt message on topic
func NewMessage(topic string, v interface{}) (Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s payload: %w", topic, err)
	}
	return Message{
		Topic:   topic,
		Attempt: 1,
		Payload: payload,
	}, nil
}

// Decode unmarshals the payload into v
func (m Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", m.Topic, err)
	}
	return nil
}

// Next returns a copy of the message for the following attempt
func (m Message) Next() Message {
	next := m
	next.ID = ""
	next.Attempt = m.Attempt + 1
	return next
}

// Publisher hands messages to the queue
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	// PublishAt makes msg visible to consumers no earlier than at
	PublishAt(ctx context.Context, msg Message, at time.Time) error
}

// Consumer reads messages for one topic
type Consumer interface {
	/* Consume blocks briefly until messages are available or ctx is cancelled
	 * Returns an empty slice when nothing arrived in time
	 */
	Consume(ctx context.Context, topic string) ([]Message, error)
	// Ack removes a processed message from the pending set
	Ack(ctx context.Context, msg Message) error
}

// Stats reports queue depths per topic
type Stats interface {
	Lengths(ctx context.Context) (map[string]int64, error)
}

// Queue combines all queue capabilities
type Queue interface {
	Publisher
	Consumer
	Stats
	Close(ctx context.Context) error
}

// Heartbeat is the liveness record of one consumer
type Heartbeat struct {
	WorkerID      string    `json:"worker_id"`
	Topic         string    `json:"topic"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Heartbeats records and lists consumer liveness
type Heartbeats interface {
	SetWorkerHeartbeat(ctx context.Context, workerID, topic, status string) error
	GetAllActiveWorkers(ctx context.Context) (map[string][]Heartbeat, error)
}
