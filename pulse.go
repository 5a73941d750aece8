// Package pulse records job and request telemetry from inside a Go service.
//
// An Agent wraps HTTP handlers and queue workers, persists one run per unit of work with
// its spans, and rolls completed runs into summaries that back the metric card API.
//
//	agent, err := pulse.New(ctx, pulse.Options{DB: db, Redis: rdb, Routes: mux})
//	...
//	srv := &http.Server{Handler: agent.Middleware(mux)}
//	go agent.Run(ctx)
package pulse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/adapters/jobqueue"
	"github.com/target/pulse/internal/bootstrap"
	"github.com/target/pulse/internal/instrument"
	"github.com/target/pulse/internal/service"
)

// adapterName labels runs tracked through the Agent.
const adapterName = "pulse"

type (
	// JobDescriptor describes one job execution handed to TrackJob.
	JobDescriptor = service.JobDescriptor
	// Envelope is one job as delivered by a queue.
	Envelope = jobqueue.Envelope
	// JobHandler processes one envelope.
	JobHandler = jobqueue.Handler
	// QueueOption configures JobMiddleware.
	QueueOption = jobqueue.Option
	// QueueRunner consumes envelopes from a Redis list.
	QueueRunner = jobqueue.Runner
	// Event is an instrumentation event published inside tracked work.
	Event = instrument.Event
	// Notifier fans instrumentation events out to subscribers.
	Notifier = instrument.Notifier
)

// NewNotifier returns a notifier that turns sql, cache and custom events inside tracked work
// into spans. Pass it to InstrumentedDriver and Options so both share one event stream.
func NewNotifier(logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return bootstrap.NewInstrumentation(logger)
}

// InstrumentedDriver registers a pgx driver that publishes every statement to n and
// returns its name for sql.Open.
func InstrumentedDriver(n *Notifier) string { return instrument.RegisterPgxDriver(n) }

// InstrumentRedis publishes every command on client to n.
func InstrumentRedis(client redis.UniversalClient, n *Notifier) {
	client.AddHook(instrument.NewRedisHook(n))
}

// WithMaxAttempts records failures as retried while attempts remain.
func WithMaxAttempts(n int) QueueOption { return jobqueue.WithMaxAttempts(n) }

// MarkRetry flags err so the run is recorded as retried rather than failed.
func MarkRetry(err error) error { return service.MarkRetry(err) }

// Options configures an Agent.
type Options struct {
	DB *sql.DB // Required
	// Config is loaded from the environment when nil.
	Config *config.AppConfig
	// Redis backs the card cache, the summarizer lock and queue runners. Optional.
	Redis  redis.UniversalClient
	Routes *http.ServeMux // Optional: raw request paths are recorded when nil
	// Notifier should be the one passed to InstrumentedDriver. A fresh one is built when nil.
	Notifier *Notifier
	Logger   *slog.Logger
}

// Agent is the embeddable telemetry collector.
type Agent struct {
	cfg      *config.AppConfig
	db       *sql.DB
	redis    redis.UniversalClient
	services bootstrap.ServiceContainer
	logger   *slog.Logger
}

// New wires an Agent. Migrations run first when configured to run on start.
func New(ctx context.Context, opts Options) (*Agent, error) {
	if opts.DB == nil {
		return nil, errors.New("database connection is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		loaded, err := bootstrap.LoadConfig()
		if err != nil {
			return nil, err
		}
		cfg = &loaded
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, opts.DB, logger); err != nil {
			return nil, err
		}
	}

	deps := &bootstrap.ServiceDeps{
		Config:      cfg,
		DB:          opts.DB,
		RedisClient: opts.Redis,
		Logger:      logger,
		Notifier:    opts.Notifier,
	}
	if opts.Routes != nil {
		deps.Routes = service.ServeMuxResolver(opts.Routes)
	}
	svcs, err := bootstrap.NewServices(deps)
	if err != nil {
		return nil, fmt.Errorf("wire pulse: %w", err)
	}
	return &Agent{cfg: cfg, db: opts.DB, redis: opts.Redis, services: svcs, logger: logger}, nil
}

// Middleware records every request served by next, except ignored paths.
func (a *Agent) Middleware(next http.Handler) http.Handler {
	return a.services.Collector.Middleware(next)
}

// TrackJob runs work as one tracked job run and returns work's error.
func (a *Agent) TrackJob(ctx context.Context, d JobDescriptor, work func(context.Context) error) error {
	return a.services.Collector.TrackJob(ctx, d, adapterName, work)
}

// JobMiddleware tracks every envelope passed to a queue handler.
func (a *Agent) JobMiddleware(opts ...QueueOption) func(JobHandler) JobHandler {
	return jobqueue.Middleware(a.services.Collector, adapterName, opts...)
}

// NewQueueRunner returns a runner consuming queue with h wrapped in JobMiddleware.
// Call Run on it to start the workers.
func (a *Agent) NewQueueRunner(queue string, h JobHandler, concurrency int, opts ...QueueOption) (*QueueRunner, error) {
	if a.redis == nil {
		return nil, errors.New("redis client is required for queue runners")
	}
	return jobqueue.NewRunner(jobqueue.RunnerOptions{
		Client:      a.redis,
		Queue:       queue,
		DeadQueue:   queue + ":dead",
		Handler:     a.JobMiddleware(opts...)(h),
		Concurrency: concurrency,
		Logger:      a.logger,
		Metrics:     a.services.Observability.MetricsSink,
	})
}

// Enqueue pushes env onto queue for a QueueRunner.
func (a *Agent) Enqueue(ctx context.Context, queue string, env Envelope) error {
	if a.redis == nil {
		return errors.New("redis client is required to enqueue jobs")
	}
	return jobqueue.Enqueue(ctx, a.redis, queue, env)
}

// Instrument publishes a custom event that becomes a span inside tracked work.
func (a *Agent) Instrument(ctx context.Context, name string, payload any, fn func(context.Context) error) error {
	return a.services.Observability.Notifier.Instrument(ctx, name, payload, fn)
}

// Subscribe registers fn for events whose name matches pattern.
func (a *Agent) Subscribe(pattern string, fn func(context.Context, Event)) (func(), error) {
	return a.services.Observability.Notifier.Subscribe(pattern, fn)
}

// Handler returns the metric card and job API, mounted at the configured mount path.
func (a *Agent) Handler() http.Handler {
	return bootstrap.BuildHTTPHandler(&bootstrap.HTTPServerConfig{
		Config:   a.cfg,
		Services: a.services,
		DB:       a.db,
		Redis:    a.redis,
		Logger:   a.logger,
	}, a.logger)
}

// Run drives the enabled background services until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.IsSummarizerEnabled() && a.services.Summarizer != nil {
		g.Go(func() error { return a.services.Summarizer.Run(ctx) })
	}
	if a.cfg.IsRetentionEnabled() && a.services.Retention != nil {
		g.Go(func() error { return a.services.Retention.Run(ctx) })
	}
	return g.Wait()
}
