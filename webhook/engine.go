package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcelsud/webhook-relay/queue"
)

const DefaultDeliveryTimeout = 10 * time.Second

// Attempt describes where a delivery sits inside its cycle
type Attempt struct {
	Number int
	// Final is set on the last attempt of the budget; a transient failure then ends in DLQ
	Final bool
}

/* Engine performs a single outbound delivery and records its outcome
 * Retry scheduling belongs to the caller: a transient failure is reported as ErrTransientDelivery
 * Lock and store failures are reported as ErrOutcomeNotRecorded; the attempt must run again
 */
type Engine struct {
	Repo   Repository
	Queue  queue.Publisher
	client *http.Client
	opts   options
}

// NewEngine creates a delivery engine; timeout bounds each outbound request
func NewEngine(repo Repository, q queue.Publisher, timeout time.Duration, opts ...Option) *Engine {
	o := buildOptions(opts)

	client := o.client
	if client == nil {
		if timeout <= 0 {
			timeout = DefaultDeliveryTimeout
		}
		client = &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return &Engine{
		Repo:   repo,
		Queue:  q,
		client: client,
		opts:   o,
	}
}

// Deliver posts the command body to its target and persists the outcome
func (e *Engine) Deliver(ctx context.Context, cmd ForwardCommand, attempt Attempt) error {
	if cmd.TargetURL == "" {
		return fmt.Errorf("%w: forward command without target URL", ErrInvalidInput)
	}

	log := e.opts.logger.With().
		Str("webhook_id", cmd.WebhookID).
		Str("target_url", cmd.TargetURL).
		Int("attempt", attempt.Number).
		Logger()

	unlock, err := e.opts.locker.Lock(ctx, cmd.WebhookID)
	if err != nil {
		return fmt.Errorf("%w: acquiring lock: %v", ErrOutcomeNotRecorded, err)
	}

	wh, err := e.Repo.Get(ctx, cmd.WebhookID)
	if err != nil {
		unlock()
		if errors.Is(err, ErrNotFound) {
			log.Error().Msg("webhook record missing, dropping delivery")
			return ErrRecordMissing
		}
		return fmt.Errorf("%w: loading webhook: %v", ErrOutcomeNotRecorded, err)
	}

	statusCode, deliveryErr := e.post(ctx, cmd)
	now := e.opts.now().UTC()
	wh.TargetURL = cmd.TargetURL

	var (
		result   error
		deadLtr  bool
		errorMsg string
	)
	switch {
	case deliveryErr == nil && statusCode < http.StatusBadRequest:
		wh.Status = Forwarded
		wh.ForwardedAt = &now
		log.Info().Int("status_code", statusCode).Msg("webhook forwarded")

	case deliveryErr == nil && statusCode < http.StatusInternalServerError:
		errorMsg = httpError(statusCode)
		deadLtr = true
		result = fmt.Errorf("%w: %s", ErrPermanentDelivery, errorMsg)

	default:
		if deliveryErr != nil {
			errorMsg = deliveryErr.Error()
		} else {
			errorMsg = httpError(statusCode)
		}
		if attempt.Final {
			deadLtr = true
			result = fmt.Errorf("%w: retries exhausted: %s", ErrPermanentDelivery, errorMsg)
			break
		}
		wh.Status = Retrying
		wh.RetryCount++
		wh.LastRetryAt = &now
		wh.ErrorMessage = errorMsg
		result = fmt.Errorf("%w: %s", ErrTransientDelivery, errorMsg)
		log.Warn().Str("error", errorMsg).Msg("delivery failed, will retry")
	}

	if deadLtr {
		wh.Status = DLQ
		wh.ErrorMessage = errorMsg
		wh.DLQAt = &now
		wh.ForwardedAt = &now
		log.Warn().Str("error", errorMsg).Msg("webhook moved to dead letter queue")
	}

	if err := e.Repo.Save(ctx, wh); err != nil {
		unlock()
		return fmt.Errorf("%w: saving outcome: %v", ErrOutcomeNotRecorded, err)
	}
	unlock()
	e.opts.broadcast(ctx, wh)

	if deadLtr {
		e.publishDeadLetter(ctx, cmd, errorMsg, statusCode)
	}

	return result
}

func httpError(statusCode int) string {
	text := http.StatusText(statusCode)
	if text == "" {
		text = "unknown status"
	}
	return fmt.Sprintf("HTTP %d: %s", statusCode, text)
}

func (e *Engine) post(ctx context.Context, cmd ForwardCommand) (int, error) {
	body := []byte(cmd.Body)
	if len(body) == 0 {
		body = []byte("null")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cmd.TargetURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header = forwardHeaders(cmd.Headers)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}

func (e *Engine) publishDeadLetter(ctx context.Context, cmd ForwardCommand, errorMsg string, statusCode int) {
	msg, err := queue.NewMessage(TopicForwardDLQ, DeadLetterEvent{
		WebhookID:    cmd.WebhookID,
		TargetURL:    cmd.TargetURL,
		ErrorMessage: errorMsg,
		StatusCode:   statusCode,
	})
	if err == nil {
		err = e.Queue.Publish(ctx, msg)
	}
	if err != nil {
		e.opts.logger.Error().Err(err).
			Str("webhook_id", cmd.WebhookID).
			Msg("failed to publish dead letter event")
	}
}
