// Package summarizer runs scheduled summary passes.
package summarizer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/data"
	"github.com/target/pulse/internal/domain/model"
	"github.com/target/pulse/internal/observability/statsd"
	"github.com/target/pulse/internal/service"
)

// LockKey is the cache key guarding scheduled passes across instances.
const LockKey = "summarizer:lock"

// ErrPassInProgress is returned by RunOnce when another instance holds the pass lock.
var ErrPassInProgress = errors.New("summary pass already in progress")

// Runner re-summarizes the trailing lookback window on a cron schedule.
type Runner struct {
	summarizer *service.Summarizer
	lock       core.CacheRepository
	schedule   cron.Schedule
	spec       string
	periods    []model.PeriodType
	lookback   time.Duration
	lockTTL    time.Duration
	clock      core.TimeProvider
	logger     *slog.Logger
	metrics    statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.SummaryConfig
	Logger *slog.Logger

	// Lock is optional; without it every instance runs every pass.
	Lock core.CacheRepository

	// Optional dependency injection for testing/decoupling
	Repo         core.SummaryRepository
	TimeProvider core.TimeProvider
	Metrics      statsd.Sink
}

// NewRunner creates a summarizer runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = core.SystemTime{}
	}

	schedule, err := cron.ParseStandard(opts.Config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", opts.Config.Schedule, err)
	}
	periods, err := opts.Config.PeriodTypes()
	if err != nil {
		return nil, err
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewSummaryRepo(opts.DB, data.RepoConfig{})
	}
	svc, err := service.NewSummarizer(service.SummarizerOptions{
		Repo:        repo,
		Calendar:    opts.Config.Calendar(),
		Concurrency: opts.Config.Concurrency,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire summarizer: %w", err)
	}

	return &Runner{
		summarizer: svc,
		lock:       opts.Lock,
		schedule:   schedule,
		spec:       opts.Config.Schedule,
		periods:    periods,
		lookback:   opts.Config.Lookback,
		lockTTL:    opts.Config.LockTTL,
		clock:      opts.TimeProvider,
		logger:     opts.Logger.With("component", "summarizer_runner"),
		metrics:    opts.Metrics,
	}, nil
}

// Summarizer exposes the wired service for on-demand passes.
func (r *Runner) Summarizer() *service.Summarizer { return r.summarizer }

// Run schedules passes until ctx is cancelled, then waits for a running pass to finish.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(r.schedule, cron.FuncJob(func() { r.tick(ctx) }))

	r.logger.InfoContext(ctx, "starting summarizer runner",
		"schedule", r.spec,
		"lookback", r.lookback,
		"next_run", r.schedule.Next(r.clock.Now()).UTC(),
	)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.InfoContext(ctx, "summarizer runner stopped")

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (r *Runner) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := r.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrPassInProgress):
		r.logger.DebugContext(ctx, "summary pass skipped; lock held elsewhere")
	case errors.Is(err, context.Canceled):
	default:
		r.logger.ErrorContext(ctx, "scheduled summary pass failed", "error", err)
	}
}

// RunOnce summarizes [now-lookback, now) under the pass lock.
func (r *Runner) RunOnce(ctx context.Context) (service.BackfillResult, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return service.BackfillResult{}, err
	}
	defer release()

	now := r.clock.Now()
	return r.summarizer.Summarize(ctx, service.SummarizeRequest{
		Start:   now.Add(-r.lookback),
		End:     now,
		Periods: r.periods,
		Trigger: service.TriggerCron,
	})
}

func (r *Runner) acquire(ctx context.Context) (func(), error) {
	if r.lock == nil {
		return func() {}, nil
	}
	token := []byte(uuid.NewString())
	ok, err := r.lock.SetIfNotExists(ctx, LockKey, token, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire summarizer lock: %w", err)
	}
	if !ok {
		if r.metrics != nil {
			r.metrics.Count("summarizer.lock_skipped", 1, nil)
		}
		return nil, ErrPassInProgress
	}
	return func() {
		if _, err := r.lock.CompareAndDelete(context.WithoutCancel(ctx), LockKey, token); err != nil {
			r.logger.WarnContext(ctx, "release summarizer lock failed", "error", err)
		}
	}, nil
}
