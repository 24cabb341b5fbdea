package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

/* Redis pub/sub relay for status projections
 * Publisher is the webhook.Notifier of processes without subscribers (workers, CLI)
 * Subscriber runs in the API process and feeds a local notifier such as the WebSocket hub
 */

const channelPattern = webhook.GlobalChannel + "*"

type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a notifier that PUBLISHes projections
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Notify publishes p on channel
func (p *Publisher) Notify(ctx context.Context, channel string, proj webhook.Projection) error {
	data, err := json.Marshal(proj)
	if err != nil {
		return fmt.Errorf("encoding projection: %w", err)
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publishing projection: %w", err)
	}
	return nil
}

type Subscriber struct {
	client *redis.Client
	target webhook.Notifier
	logger zerolog.Logger
}

// NewSubscriber relays every projection channel to target
func NewSubscriber(client *redis.Client, target webhook.Notifier, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		client: client,
		target: target,
		logger: logger,
	}
}

// Run blocks until ctx is done
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.client.PSubscribe(ctx, channelPattern)
	defer sub.Close()

	// Wait for confirmation that subscription is created
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", channelPattern, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var proj webhook.Projection
			if err := json.Unmarshal([]byte(msg.Payload), &proj); err != nil {
				s.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed projection")
				continue
			}
			if err := s.target.Notify(ctx, msg.Channel, proj); err != nil {
				s.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("relaying projection")
			}
		}
	}
}
