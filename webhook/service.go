package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/marcelsud/webhook-relay/queue"
)

/* Service represents the business logic layer
 * Uses pointer semantics as it's an API, not data
 * Every entry point hands delivery to the queue and never waits for its outcome
 */

// UseCase defines the business operations for webhook relaying
type UseCase interface {
	Capture(ctx context.Context, projectID, method string, headers map[string][]string, body json.RawMessage) (string, error)
	Replay(ctx context.Context, id, targetURL string) error
	ManualRetry(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context, filter ListFilter) (Page, error)
	ListFailed(ctx context.Context) ([]Webhook, error)
}

// ListFilter selects a page of webhooks
type ListFilter struct {
	ProjectID string
	Limit     int
	Offset    int
}

// Page is one slice of a listing plus the total number of matches
type Page struct {
	Webhooks []Webhook
	Total    int
	Limit    int
	Offset   int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Service struct {
	Repo  Repository
	Queue queue.Publisher
	opts  options
}

// NewService creates a new webhook service with dependency injection
func NewService(repo Repository, q queue.Publisher, opts ...Option) *Service {
	return &Service{
		Repo:  repo,
		Queue: q,
		opts:  buildOptions(opts),
	}
}

// Capture assigns an id and hands the raw request to the persistence step
func (s *Service) Capture(ctx context.Context, projectID, method string, headers map[string][]string, body json.RawMessage) (string, error) {
	if projectID == "" {
		return "", fmt.Errorf("%w: projectId is required", ErrInvalidInput)
	}

	id, err := s.opts.newID()
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		body = json.RawMessage("null")
	}

	msg, err := queue.NewMessage(TopicCaptured, CapturedEvent{
		WebhookID:  id,
		ProjectID:  projectID,
		Method:     method,
		Headers:    headers,
		Body:       body,
		ReceivedAt: s.opts.now().UTC(),
	})
	if err != nil {
		return "", err
	}

	if err := s.Queue.Publish(ctx, msg); err != nil {
		return "", fmt.Errorf("dispatching captured webhook: %w", err)
	}

	return id, nil
}

/* HandleCaptured persists a captured webhook in the received state
 * Redelivered events for an existing id never rewrite capture fields
 * Projects with a configured target are forwarded to while the record is still received
 */
func (s *Service) HandleCaptured(ctx context.Context, evt CapturedEvent) error {
	unlock, err := s.opts.locker.Lock(ctx, evt.WebhookID)
	if err != nil {
		return err
	}

	stored, err := s.Repo.Get(ctx, evt.WebhookID)
	if err == nil {
		unlock()
		s.opts.logger.Debug().Str("webhook_id", evt.WebhookID).Msg("captured webhook already stored")
		if stored.Status != Received {
			return nil
		}
		return s.autoForward(ctx, stored)
	}
	if !errors.Is(err, ErrNotFound) {
		unlock()
		return fmt.Errorf("checking captured webhook: %w", err)
	}

	wh := Webhook{
		ID:         evt.WebhookID,
		ProjectID:  evt.ProjectID,
		Method:     evt.Method,
		Headers:    evt.Headers,
		Body:       evt.Body,
		ReceivedAt: evt.ReceivedAt,
		Status:     Received,
	}
	if wh.Headers == nil {
		wh.Headers = map[string][]string{}
	}
	if len(wh.Body) == 0 {
		wh.Body = json.RawMessage("null")
	}

	if err := s.Repo.Save(ctx, wh); err != nil {
		unlock()
		return fmt.Errorf("storing captured webhook: %w", err)
	}
	unlock()
	s.opts.broadcast(ctx, wh)

	return s.autoForward(ctx, wh)
}

func (s *Service) autoForward(ctx context.Context, wh Webhook) error {
	settings := s.opts.settings(wh.ProjectID)
	if settings.TargetURL == "" {
		return nil
	}
	return s.dispatch(ctx, wh, settings.TargetURL)
}

// Replay sends the captured payload to targetURL in a new delivery cycle
func (s *Service) Replay(ctx context.Context, id, targetURL string) error {
	wh, err := s.Repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("getting webhook: %w", err)
	}

	if err := ValidateTargetURL(targetURL); err != nil {
		return err
	}

	return s.dispatch(ctx, wh, targetURL)
}

/* ManualRetry re-arms the webhook against its last target URL
 * The attempt is queued before the record moves to retrying; the lock holds the worker back until it is saved
 */
func (s *Service) ManualRetry(ctx context.Context, id string) error {
	unlock, err := s.opts.locker.Lock(ctx, id)
	if err != nil {
		return err
	}

	wh, err := s.Repo.Get(ctx, id)
	if err != nil {
		unlock()
		return fmt.Errorf("getting webhook: %w", err)
	}
	if wh.TargetURL == "" {
		unlock()
		return fmt.Errorf("%w: webhook has no target URL to retry", ErrInvalidState)
	}

	if err := s.dispatch(ctx, wh, wh.TargetURL); err != nil {
		unlock()
		return err
	}

	now := s.opts.now().UTC()
	wh.Status = Retrying
	wh.RetryCount++
	wh.LastRetryAt = &now

	if err := s.Repo.Save(ctx, wh); err != nil {
		unlock()
		return fmt.Errorf("updating webhook: %w", err)
	}
	unlock()
	s.opts.broadcast(ctx, wh)

	return nil
}

// Get returns a single webhook
func (s *Service) Get(ctx context.Context, id string) (Webhook, error) {
	wh, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	return wh, nil
}

// List returns webhooks newest first, optionally for one project
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	all, err := s.Repo.List(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("listing webhooks: %w", err)
	}

	matched := make([]Webhook, 0, len(all))
	for _, wh := range all {
		if filter.ProjectID != "" && wh.ProjectID != filter.ProjectID {
			continue
		}
		matched = append(matched, wh)
	}
	sortNewestFirst(matched)

	page := Page{
		Webhooks: []Webhook{},
		Total:    len(matched),
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	if filter.Offset < len(matched) {
		end := filter.Offset + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Webhooks = matched[filter.Offset:end]
	}
	return page, nil
}

// ListFailed returns webhooks in retrying, dlq or legacy failed state, newest first
func (s *Service) ListFailed(ctx context.Context) ([]Webhook, error) {
	all, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}

	failed := make([]Webhook, 0)
	for _, wh := range all {
		if wh.Status.IsFailure() {
			failed = append(failed, wh)
		}
	}
	sortNewestFirst(failed)
	return failed, nil
}

func (s *Service) dispatch(ctx context.Context, wh Webhook, targetURL string) error {
	msg, err := queue.NewMessage(TopicForward, ForwardCommand{
		WebhookID: wh.ID,
		TargetURL: targetURL,
		Headers:   wh.Headers,
		Body:      wh.Body,
	})
	if err != nil {
		return err
	}
	msg.MaxAttempts = s.opts.settings(wh.ProjectID).MaxAttempts

	if err := s.Queue.Publish(ctx, msg); err != nil {
		return fmt.Errorf("dispatching forward: %w", err)
	}
	return nil
}

// ValidateTargetURL checks that raw is an absolute http(s) URL
func ValidateTargetURL(raw string) error {
	err := validation.Validate(raw,
		validation.Required,
		is.RequestURL,
		validation.By(httpScheme),
	)
	if err != nil {
		return fmt.Errorf("%w: targetUrl %v", ErrInvalidInput, err)
	}
	return nil
}

func httpScheme(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http or https URL")
	}
	return nil
}

func sortNewestFirst(webhooks []Webhook) {
	sort.SliceStable(webhooks, func(i, j int) bool {
		if webhooks[i].ReceivedAt.Equal(webhooks[j].ReceivedAt) {
			return webhooks[i].ID > webhooks[j].ID
		}
		return webhooks[i].ReceivedAt.After(webhooks[j].ReceivedAt)
	})
}
