package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/core"
	obserrors "github.com/target/pulse/internal/observability/errors"
	"github.com/target/pulse/internal/observability/metrics"
	"github.com/target/pulse/internal/observability/statsd"
)

// RetentionServiceOptions groups dependencies for RetentionService.
type RetentionServiceOptions struct {
	Repo         core.RetentionRepository // Required: retention repository
	Config       config.RetentionConfig   // Required: retention configuration
	TimeProvider core.TimeProvider        // Optional: defaults to the system clock
	Logger       *slog.Logger             // Optional: structured logger
	Metrics      statsd.Sink              // Optional: metrics sink (StatsD-compatible)
}

// RetentionService deletes old raw telemetry.
//
// Each pass:
// - Deletes job runs and requests older than the full retention period.
// - Trims job_runs, requests and operations down to their row caps, oldest first.
//
// Operations belonging to deleted job runs and requests are removed by cascade.
type RetentionService struct {
	repo    core.RetentionRepository
	config  config.RetentionConfig
	clock   core.TimeProvider
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewRetentionService constructs a new RetentionService.
func NewRetentionService(opts RetentionServiceOptions) (*RetentionService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RetentionRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "retention_service")
		logger.Debug("RetentionService initialized",
			"interval", opts.Config.Interval,
			"full_retention", opts.Config.FullRetention,
			"max_job_runs", opts.Config.MaxJobRuns,
			"max_requests", opts.Config.MaxRequests,
			"max_operations", opts.Config.MaxOperations,
		)
	}

	clock := opts.TimeProvider
	if clock == nil {
		clock = core.SystemTime{}
	}

	return &RetentionService{
		repo:    opts.Repo,
		config:  opts.Config,
		clock:   clock,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the retention loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *RetentionService) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("invalid retention interval %s", s.config.Interval)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting retention service", "interval", s.config.Interval)
	}

	// Jitter keeps instances started together from deleting in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logPassError(err, "initial retention pass")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *RetentionService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *RetentionService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "retention service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logPassError(err, "retention pass")
			}
		}
	}
}

// RetentionStepResult reports one step of a pass.
type RetentionStepResult struct {
	Step    string `json:"step"`
	Deleted int64  `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// RetentionResult reports a whole pass.
type RetentionResult struct {
	Steps   []RetentionStepResult `json:"steps"`
	Deleted int64                 `json:"deleted"`
}

type retentionStep struct {
	name string
	fn   func(context.Context) (int64, error)
}

func (s *RetentionService) steps() []retentionStep {
	cutoff := s.clock.Now().Add(-s.config.FullRetention)
	return []retentionStep{
		{name: "job_runs_age", fn: s.deleteOlderThan(core.RetentionJobRuns, cutoff)},
		{name: "requests_age", fn: s.deleteOlderThan(core.RetentionRequests, cutoff)},
		{name: "job_runs_cap", fn: s.trimToLimit(core.RetentionJobRuns, s.config.MaxJobRuns)},
		{name: "requests_cap", fn: s.trimToLimit(core.RetentionRequests, s.config.MaxRequests)},
		{name: "operations_cap", fn: s.trimToLimit(core.RetentionOperations, s.config.MaxOperations)},
	}
}

// RunOnce performs one retention pass. A failing step does not stop the others.
func (s *RetentionService) RunOnce(ctx context.Context) (RetentionResult, error) {
	start := time.Now()
	var (
		res                RetentionResult
		errs               []error
		allContextCanceled = true
	)

	for _, step := range s.steps() {
		count, err := step.fn(ctx)
		metrics.EmitRetention(s.metrics, step.name, count, suppressContextCancellation(err))

		sr := RetentionStepResult{Step: step.name, Deleted: count}
		res.Deleted += count
		if err != nil {
			sr.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
		res.Steps = append(res.Steps, sr)
	}

	s.emitPassMetrics(res.Deleted, time.Since(start), errs)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return res, context.Canceled
		}
		return res, fmt.Errorf("retention failed: %w", joined)
	}
	return res, nil
}

// deleteOlderThan loops in batches until nothing older than cutoff remains.
func (s *RetentionService) deleteOlderThan(table core.RetentionTable, cutoff time.Time) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		total, err := s.drain(ctx, func(ctx context.Context) (int64, error) {
			return s.repo.DeleteOlderThan(ctx, core.DeleteOlderThanParams{
				Table:     table,
				Cutoff:    cutoff,
				BatchSize: s.config.BatchSize,
			})
		})
		if total > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "deleted expired rows", "table", table, "count", total, "cutoff", cutoff)
		}
		return total, err
	}
}

// trimToLimit deletes the oldest rows in batches while the table exceeds maxRows.
// A zero cap disables the step.
func (s *RetentionService) trimToLimit(table core.RetentionTable, maxRows int64) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		if maxRows <= 0 {
			return 0, nil
		}
		total, err := s.drain(ctx, func(ctx context.Context) (int64, error) {
			return s.repo.TrimToLimit(ctx, core.TrimToLimitParams{
				Table:     table,
				MaxRows:   int(maxRows),
				BatchSize: s.config.BatchSize,
			})
		})
		if total > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "trimmed table to cap", "table", table, "count", total, "max_rows", maxRows)
		}
		return total, err
	}
}

func (s *RetentionService) drain(ctx context.Context, batch func(context.Context) (int64, error)) (int64, error) {
	var totalCount int64
	for {
		count, err := batch(ctx)
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			return totalCount, nil
		}
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}
}

func (s *RetentionService) emitPassMetrics(deleted int64, elapsed time.Duration, errs []error) {
	if s.metrics == nil {
		return
	}

	firstErr := firstError(errs...)
	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if deleted == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("retention.pass", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("retention.pass_duration", elapsed, metrics.CloneTags(tags))
	}
	if firstErr == nil {
		s.metrics.Gauge("retention.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *RetentionService) logPassError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
