package worker

import (
	"context"
	"errors"
	"time"

	"github.com/marcelsud/webhook-relay/queue"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/rs/zerolog"
)

// CaptureStore persists captured webhooks
type CaptureStore interface {
	HandleCaptured(ctx context.Context, evt webhook.CapturedEvent) error
}

// Deliverer performs one delivery attempt
type Deliverer interface {
	Deliver(ctx context.Context, cmd webhook.ForwardCommand, attempt webhook.Attempt) error
}

// CapturedHandler persists captured events; failures stay pending for redelivery
func CapturedHandler(store CaptureStore) Handler {
	return func(ctx context.Context, msg queue.Message) error {
		var evt webhook.CapturedEvent
		if err := msg.Decode(&evt); err != nil {
			// undecodable payloads are never going to succeed
			return nil
		}
		return store.HandleCaptured(ctx, evt)
	}
}

/* ForwardHandler runs one attempt and schedules the next one on transient failure
 * The budget comes from the message when set, otherwise from policy
 * Permanent failures and missing records are acknowledged; the engine already recorded them
 * An attempt whose outcome was never stored stays pending and runs again with the same number
 */
func ForwardHandler(engine Deliverer, pub queue.Publisher, policy webhook.RetryPolicy, logger zerolog.Logger) Handler {
	return func(ctx context.Context, msg queue.Message) error {
		var cmd webhook.ForwardCommand
		if err := msg.Decode(&cmd); err != nil {
			logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable forward command")
			return nil
		}

		attempt := msg.Attempt
		if attempt < 1 {
			attempt = 1
		}
		budget := policy.Budget(msg.MaxAttempts)

		err := engine.Deliver(ctx, cmd, webhook.Attempt{
			Number: attempt,
			Final:  attempt >= budget,
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, webhook.ErrOutcomeNotRecorded):
			return err
		case errors.Is(err, webhook.ErrTransientDelivery) && attempt < budget:
			delay := policy.NextDelay(attempt)
			next := msg.Next()
			next.Attempt = attempt + 1
			if err := pub.PublishAt(ctx, next, time.Now().Add(delay)); err != nil {
				return err
			}
			logger.Info().
				Str("webhook_id", cmd.WebhookID).
				Int("next_attempt", next.Attempt).
				Int("max_attempts", budget).
				Dur("delay", delay).
				Msg("retry scheduled")
			return nil
		case errors.Is(err, webhook.ErrRecordMissing):
			return nil
		default:
			logger.Debug().Err(err).Str("webhook_id", cmd.WebhookID).Msg("delivery cycle finished with failure")
			return nil
		}
	}
}

// DeadLetterHandler records DLQ arrivals; onDeadLetter may be nil
func DeadLetterHandler(logger zerolog.Logger, onDeadLetter func(ctx context.Context, evt webhook.DeadLetterEvent)) Handler {
	return func(ctx context.Context, msg queue.Message) error {
		var evt webhook.DeadLetterEvent
		if err := msg.Decode(&evt); err != nil {
			logger.Error().Err(err).Msg("dropping undecodable dead letter event")
			return nil
		}
		logger.Warn().
			Str("webhook_id", evt.WebhookID).
			Str("target_url", evt.TargetURL).
			Int("status_code", evt.StatusCode).
			Str("error", evt.ErrorMessage).
			Msg("webhook dead-lettered")
		if onDeadLetter != nil {
			onDeadLetter(ctx, evt)
		}
		return nil
	}
}
