package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcelsud/webhook-relay/config"
	"github.com/marcelsud/webhook-relay/metrics"
	"github.com/marcelsud/webhook-relay/notify"
	notifyredis "github.com/marcelsud/webhook-relay/notify/redis"
	"github.com/marcelsud/webhook-relay/projects"
	"github.com/marcelsud/webhook-relay/queue"
	queuememory "github.com/marcelsud/webhook-relay/queue/memory"
	queueredis "github.com/marcelsud/webhook-relay/queue/redis"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/marcelsud/webhook-relay/webhook/memory"
	"github.com/marcelsud/webhook-relay/webhook/postgres"
	whredis "github.com/marcelsud/webhook-relay/webhook/redis"
	"github.com/marcelsud/webhook-relay/worker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

/* App holds every wired component of the relay
 * The same wiring is shared by the API, the standalone worker and the CLI
 */
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Repo     webhook.Repository
	Queue    queue.Queue
	Projects *projects.Loader
	Service  *webhook.Service
	Engine   *webhook.Engine
	Hub      *notify.Hub
	Metrics  *metrics.OTelExporter

	heartbeats queue.Heartbeats
	redis      *goredis.Client
}

// New builds the relay from cfg
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Projects: projects.NewLoader(),
		Hub:      notify.NewHub(logger.With().Str("component", "hub").Logger()),
	}

	if err := app.Projects.LoadOptional(cfg.ProjectsFile); err != nil {
		return nil, fmt.Errorf("loading projects: %w", err)
	}

	if cfg.StoreBackend == config.BackendRedis || cfg.QueueBackend == config.BackendRedis {
		client, err := whredis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		app.redis = client
	}

	repo, err := app.newRepository(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.Repo = repo

	var locker webhook.Locker = webhook.NewKeyedMutex()
	var notifier webhook.Notifier = app.Hub
	switch cfg.QueueBackend {
	case config.BackendRedis:
		q := queueredis.New(app.redis, "", webhook.TopicCaptured, webhook.TopicForward, webhook.TopicForwardDLQ)
		app.Queue = q
		app.heartbeats = q
		// Workers may run in another process, so projections and locks go through Redis
		locker = whredis.NewLocker(app.redis, cfg.LockTTL)
		notifier = notifyredis.NewPublisher(app.redis)
	default:
		q := queuememory.New()
		app.Queue = q
		app.heartbeats = q
	}

	opts := []webhook.Option{
		webhook.WithLocker(locker),
		webhook.WithNotifier(notifier),
		webhook.WithProjects(app.Projects),
		webhook.WithLogger(logger),
	}
	app.Service = webhook.NewService(app.Repo, app.Queue, opts...)
	app.Engine = webhook.NewEngine(app.Repo, app.Queue, cfg.DeliveryTimeout, opts...)

	exporter, err := metrics.NewOTelExporter(metrics.NewStoreCollector(app.Repo, app.Queue, app.heartbeats))
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("creating metrics exporter: %w", err)
	}
	app.Metrics = exporter

	return app, nil
}

func (a *App) newRepository(ctx context.Context) (webhook.Repository, error) {
	switch a.Config.StoreBackend {
	case config.BackendMemory:
		return memory.NewRepository(), nil
	case config.BackendPostgres:
		repo, err := postgres.NewRepository(a.Config.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := repo.CreateTable(ctx); err != nil {
			repo.Close(ctx)
			return nil, err
		}
		repo.Logger = a.Logger
		return repo, nil
	default:
		repo := whredis.NewRepositoryWithClient(a.redis)
		repo.Logger = a.Logger
		return repo, nil
	}
}

// Workers returns a pool consuming the captured, forward and dead letter topics
func (a *App) Workers(opts ...worker.Option) *worker.Pool {
	log := a.Logger.With().Str("component", "worker").Logger()
	opts = append([]worker.Option{
		worker.WithConcurrency(a.Config.WorkerConcurrency),
		worker.WithHeartbeats(a.heartbeats),
		worker.WithLogger(log),
	}, opts...)

	pool := worker.NewPool(a.Queue, opts...)
	pool.Handle(webhook.TopicCaptured, worker.CapturedHandler(a.Service))
	pool.Handle(webhook.TopicForward, worker.ForwardHandler(a.Engine, a.Queue, a.Config.RetryPolicy(), log))
	pool.Handle(webhook.TopicForwardDLQ, worker.DeadLetterHandler(log, func(ctx context.Context, evt webhook.DeadLetterEvent) {
		a.Metrics.RecordDeadLetter(ctx, evt.StatusCode)
	}))
	return pool
}

/* RelayNotifications feeds projections published by any process into the local Hub
 * Returns immediately when notifications never leave the process
 */
func (a *App) RelayNotifications(ctx context.Context) error {
	if a.Config.QueueBackend != config.BackendRedis {
		return nil
	}
	sub := notifyredis.NewSubscriber(a.redis, a.Hub, a.Logger.With().Str("component", "relay").Logger())
	return sub.Run(ctx)
}

// Close releases every backend
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Metrics != nil {
		errs = append(errs, a.Metrics.Shutdown(ctx))
	}
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close(ctx))
	}
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close(ctx))
	}
	// The Redis repository owns the shared client
	if a.redis != nil && a.Config.StoreBackend != config.BackendRedis {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
