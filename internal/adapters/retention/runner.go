// Package retention provides adapters for running the telemetry retention loop.
package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/data"
	"github.com/target/pulse/internal/observability/statsd"
	"github.com/target/pulse/internal/service"
)

// Runner provides a simple adapter to run the retention loop.
// It constructs the retention service and runs the cleanup loop.
type Runner struct {
	retention *service.RetentionService
	logger    *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.RetentionConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo         core.RetentionRepository
	TimeProvider core.TimeProvider
	Metrics      statsd.Sink
}

// NewRunner creates a new retention runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	svc, err := wireRetentionService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire retention service: %w", err)
	}

	return &Runner{retention: svc, logger: opts.Logger}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Repo == nil {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireRetentionService(opts RunnerOptions) (*service.RetentionService, error) {
	var repo core.RetentionRepository
	if opts.Repo != nil {
		repo = opts.Repo
	} else {
		repo = data.NewRetentionRepo(opts.DB)
	}

	return service.NewRetentionService(service.RetentionServiceOptions{
		Repo:         repo,
		Config:       opts.Config,
		TimeProvider: opts.TimeProvider,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
	})
}

// Run starts the retention loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting retention runner")
	return r.retention.Run(ctx)
}

// RunOnce executes a single retention pass.
func (r *Runner) RunOnce(ctx context.Context) (service.RetentionResult, error) {
	return r.retention.RunOnce(ctx)
}
