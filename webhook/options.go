package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ProjectSettings holds optional per-project delivery defaults
type ProjectSettings struct {
	// TargetURL, when set, is forwarded to automatically after capture
	TargetURL string
	// MaxAttempts overrides the worker attempt budget when positive
	MaxAttempts int
}

// ProjectResolver looks up per-project settings
type ProjectResolver interface {
	Settings(projectID string) (ProjectSettings, bool)
}

type options struct {
	locker   Locker
	notifier Notifier
	projects ProjectResolver
	logger   zerolog.Logger
	now      Clock
	newID    func() (string, error)
	client   *http.Client
}

// Option configures a Service or an Engine
type Option func(*options)

// WithLocker sets the per-id lock; defaults to an in-process KeyedMutex
func WithLocker(l Locker) Option {
	return func(o *options) { o.locker = l }
}

// WithNotifier sets the status projection sink
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithProjects sets the per-project settings source
func WithProjects(p ProjectResolver) Option {
	return func(o *options) { o.projects = p }
}

// WithLogger sets the component logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides time.Now
func WithClock(c Clock) Option {
	return func(o *options) { o.now = c }
}

// WithIDGenerator overrides NewID
func WithIDGenerator(f func() (string, error)) Option {
	return func(o *options) { o.newID = f }
}

// WithHTTPClient sets the outbound client used by the Engine
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

func buildOptions(opts []Option) options {
	o := options{
		notifier: nopNotifier{},
		logger:   zerolog.Nop(),
		now:      time.Now,
		newID:    NewID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locker == nil {
		o.locker = NewKeyedMutex()
	}
	return o
}

func (o options) settings(projectID string) ProjectSettings {
	if o.projects == nil {
		return ProjectSettings{}
	}
	s, _ := o.projects.Settings(projectID)
	return s
}

// broadcast pushes the projection to the global and project channels.
// Failures are logged and never returned.
func (o options) broadcast(ctx context.Context, wh Webhook) {
	p := wh.Project()
	for _, channel := range []string{GlobalChannel, ProjectChannel(wh.ProjectID)} {
		if err := o.notifier.Notify(ctx, channel, p); err != nil {
			o.logger.Warn().Err(err).
				Str("webhook_id", wh.ID).
				Str("channel", channel).
				Msg("notification failed")
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, channel string, p Projection) error {
	return nil
}
