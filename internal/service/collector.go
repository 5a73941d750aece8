package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/model"
	"github.com/target/pulse/internal/instrument"
	"github.com/target/pulse/internal/observability/metrics"
	"github.com/target/pulse/internal/observability/statsd"
)

const (
	kindJob     = "job"
	kindRequest = "request"
)

// JobDescriptor describes one job execution handed to TrackJob.
type JobDescriptor struct {
	// ID is the queue's job id, used as the run's correlation id. A uuid is generated when empty.
	ID    string
	Name  string
	Queue string
	// Arguments are captured when argument capture is enabled.
	Arguments any
	// EnqueuedAt and ScheduledAt are set by queues that schedule work; either one makes the
	// run start out enqueued instead of running.
	EnqueuedAt  *time.Time
	ScheduledAt *time.Time
	Attempts    int
}

func (d JobDescriptor) initialStatus() model.RunStatus {
	if d.EnqueuedAt != nil || d.ScheduledAt != nil {
		return model.RunStatusEnqueued
	}
	return model.RunStatusRunning
}

// CollectorRepos groups the repositories the collector writes to.
type CollectorRepos struct {
	Jobs       core.JobRepository       // Required
	Runs       core.JobRunRepository    // Required
	Routes     core.RouteRepository     // Required for request tracking
	Requests   core.RequestRepository   // Required for request tracking
	Operations core.OperationRepository // Required
	Queries    core.QueryRepository     // Optional: SQL spans are stored without a query link when nil
}

// CollectorOptions groups dependencies for Collector.
type CollectorOptions struct {
	Repos        CollectorRepos
	Accumulator  *Accumulator      // Required
	Classifier   *StatusClassifier // Optional: defaults to an empty classifier
	Ignore       *IgnoreMatcher    // Optional: nothing is ignored when nil
	Arguments    *ArgumentCapture  // Optional: arguments are not captured when nil
	Routes       RouteResolver     // Optional: raw request paths are used when nil
	Parents      *ParentCache      // Optional: every unit of work finds its parent in the database when nil
	TimeProvider core.TimeProvider // Optional: defaults to the system clock
	Logger       *slog.Logger      // Optional
	Metrics      statsd.Sink       // Optional
}

// Collector wraps units of work (job runs and HTTP requests), persists their lifecycle and spans,
// and feeds terminal durations to the accumulator.
type Collector struct {
	repos       CollectorRepos
	accumulator *Accumulator
	classifier  *StatusClassifier
	ignore      *IgnoreMatcher
	arguments   *ArgumentCapture
	routes      RouteResolver
	parents     *ParentCache
	clock       core.TimeProvider
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewCollector constructs a Collector.
func NewCollector(opts CollectorOptions) (*Collector, error) {
	switch {
	case opts.Repos.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Repos.Runs == nil:
		return nil, errors.New("JobRunRepository is required")
	case opts.Repos.Operations == nil:
		return nil, errors.New("OperationRepository is required")
	case opts.Accumulator == nil:
		return nil, errors.New("Accumulator is required")
	}

	c := &Collector{
		repos:       opts.Repos,
		accumulator: opts.Accumulator,
		classifier:  opts.Classifier,
		ignore:      opts.Ignore,
		arguments:   opts.Arguments,
		routes:      opts.Routes,
		parents:     opts.Parents,
		clock:       opts.TimeProvider,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if c.classifier == nil {
		c.classifier = NewStatusClassifier(StatusClassifierOptions{})
	}
	if c.clock == nil {
		c.clock = core.SystemTime{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "collector")
	return c, nil
}

// TrackJob runs work as a tracked job run and returns work's error unchanged.
//
// Ignored jobs, and jobs whose run record cannot be created, run untracked. A panic in work is
// recorded as discarded and re-raised. Errors from the terminal update are logged; they are
// returned only when work itself succeeded.
func (c *Collector) TrackJob(ctx context.Context, d JobDescriptor, adapter string, work func(context.Context) error) error {
	if work == nil {
		return errors.New("work is required")
	}
	if ignored, reason := c.ignore.IgnoreJob(d.Name, d.Queue); ignored {
		metrics.EmitIgnored(c.metrics, kindJob, reason)
		return work(ctx)
	}

	start := c.clock.Now()
	run := c.beginJobRun(ctx, d, adapter, start)
	if run == nil {
		return work(ctx)
	}

	scope := instrument.NewScope(start)
	workCtx := instrument.WithScope(ctx, scope)

	defer func() {
		if r := recover(); r != nil {
			_ = c.finishJobRun(ctx, run, scope, start, &PanicError{Value: r})
			panic(r)
		}
	}()

	workErr := work(workCtx)
	finishErr := c.finishJobRun(ctx, run, scope, start, workErr)
	if workErr != nil {
		return workErr
	}
	return finishErr
}

// beginJobRun creates the job and its run under a suppressed context. It returns nil when
// either write fails.
func (c *Collector) beginJobRun(ctx context.Context, d JobDescriptor, adapter string, start time.Time) *model.JobRun {
	pctx := persistContext(ctx)

	jobID, err := c.jobID(pctx, d.Name, d.Queue)
	if err != nil {
		c.instrumentationError(ctx, kindJob, "find_job", err, "job", d.Name)
		return nil
	}

	args, err := c.arguments.Capture(d.Arguments)
	if err != nil {
		c.logger.DebugContext(ctx, "unable to capture job arguments", "job", d.Name, "error", err)
		args = nil
	}

	runID := strings.TrimSpace(d.ID)
	if runID == "" {
		runID = uuid.NewString()
	}
	enqueuedAt := d.EnqueuedAt
	if enqueuedAt == nil {
		enqueuedAt = d.ScheduledAt
	}

	run, err := c.repos.Runs.Create(pctx, &model.CreateJobRunRequest{
		JobID:      jobID,
		RunID:      runID,
		Status:     d.initialStatus(),
		OccurredAt: start,
		EnqueuedAt: enqueuedAt,
		Attempts:   max(d.Attempts, 0),
		Adapter:    adapter,
		Arguments:  args,
	})
	if err != nil {
		c.instrumentationError(ctx, kindJob, "create_run", err, "job", d.Name, "run_id", runID)
		return nil
	}
	return run
}

func (c *Collector) jobID(ctx context.Context, name, queue string) (int64, error) {
	key := jobCacheKey(name, queue)
	if id, ok := c.parents.Get(key); ok {
		return id, nil
	}
	job, err := c.repos.Jobs.FindOrCreate(ctx, name, queue)
	if err != nil {
		return 0, err
	}
	c.parents.Set(key, job.ID)
	return job.ID, nil
}

// finishJobRun persists spans, applies the terminal transition and the accumulator.
func (c *Collector) finishJobRun(ctx context.Context, run *model.JobRun, scope *instrument.Scope, start time.Time, workErr error) error {
	pctx := persistContext(ctx)
	spans := scope.Drain()
	c.persistSpans(pctx, model.Owner{Kind: model.OwnerJobRun, ID: run.ID}, spans)

	completion := c.completionFor(start, workErr)
	done, changed, err := c.repos.Runs.Complete(pctx, run.ID, completion)
	if err != nil {
		c.instrumentationError(ctx, kindJob, "complete_run", err, "run_id", run.RunID)
		return err
	}

	metrics.EmitUnitOfWork(c.metrics, metrics.UnitOfWorkMetric{
		Kind:     kindJob,
		Adapter:  run.Adapter,
		Status:   string(completion.Status),
		Duration: time.Duration(completion.Duration * float64(time.Millisecond)),
		Spans:    len(spans),
	})
	if !changed {
		c.logger.DebugContext(ctx, "job run already terminal", "run_id", run.RunID)
		return nil
	}
	if err := c.accumulator.ApplyJobRun(pctx, done); err != nil {
		c.instrumentationError(ctx, kindJob, "accumulate", err, "run_id", run.RunID)
		return err
	}
	return nil
}

func (c *Collector) completionFor(start time.Time, workErr error) model.Completion {
	out := model.Completion{
		Status:   c.classifier.Classify(workErr),
		Duration: instrument.Millis(max(c.clock.Now().Sub(start), 0)),
	}
	if workErr != nil {
		class := ErrorClass(workErr)
		msg := errorMessage(workErr)
		out.ErrorClass, out.ErrorMessage = &class, &msg
	}
	return out
}

// maxErrorMessageBytes bounds the error_message column value.
const maxErrorMessageBytes = 4096

// errorMessage renders err as text Postgres accepts: valid UTF-8, no NUL bytes, bounded length.
func errorMessage(err error) string {
	msg := strings.ToValidUTF8(err.Error(), "\uFFFD")
	msg = strings.ReplaceAll(msg, "\x00", "")
	return truncateUTF8(msg, maxErrorMessageBytes)
}

// persistSpans stores each span on its own so one failure does not drop the rest.
func (c *Collector) persistSpans(ctx context.Context, owner model.Owner, spans []instrument.SpanDescriptor) {
	for _, span := range spans {
		op := &model.Operation{
			Type:        span.Type,
			Label:       span.Label,
			Duration:    span.Duration,
			StartOffset: span.StartOffset,
			OccurredAt:  span.OccurredAt,
		}
		owner.Apply(op)
		if span.Location != "" {
			loc := span.Location
			op.CodeLocation = &loc
		}
		if span.QueryFingerprint != "" && c.repos.Queries != nil {
			q, err := c.repos.Queries.FindOrCreate(ctx, span.QueryFingerprint, span.NormalizedSQL)
			if err != nil {
				c.logger.WarnContext(ctx, "failed to save query", "fingerprint", span.QueryFingerprint, "error", err)
			} else {
				op.QueryID = &q.ID
			}
		}
		if err := c.repos.Operations.Insert(ctx, op); err != nil {
			c.instrumentationError(ctx, string(owner.Kind), "save_operation", err, "operation_type", span.Type)
		}
	}
}

func (c *Collector) instrumentationError(ctx context.Context, kind, stage string, err error, attrs ...any) {
	metrics.EmitInstrumentationError(c.metrics, kind, stage, err)
	if errors.Is(err, context.Canceled) {
		c.logger.DebugContext(ctx, "collector "+stage+" cancelled", append(attrs, "error", err)...)
		return
	}
	c.logger.ErrorContext(ctx, "collector "+stage+" failed", append(attrs, "error", err)...)
}

// persistContext detaches collector writes from the caller's cancellation and suppresses
// recording of the collector's own queries.
func persistContext(ctx context.Context) context.Context {
	return instrument.Suppress(context.WithoutCancel(ctx))
}
