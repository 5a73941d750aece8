package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/pulse/internal/observability/metrics"
	"github.com/target/pulse/internal/observability/statsd"
	"github.com/target/pulse/internal/service"
)

// RunnerOptions configures a Redis list consumer.
type RunnerOptions struct {
	Client redis.UniversalClient // Required
	Queue  string                // Required: list key envelopes are pushed to
	// DeadQueue receives envelopes whose final attempt failed. Empty drops them.
	DeadQueue   string
	Handler     Handler // Required: wrap with Middleware to track each job
	Concurrency int     // defaults to 1
	// PollTimeout bounds each blocking pop so workers notice cancellation.
	PollTimeout time.Duration
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// Runner pops JSON envelopes from a Redis list and hands them to a handler.
// Errors marked for retry are pushed back with Executions incremented.
type Runner struct {
	client      redis.UniversalClient
	queue       string
	deadQueue   string
	handler     Handler
	workers     int
	pollTimeout time.Duration
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	switch {
	case opts.Client == nil:
		return nil, errors.New("redis client is required")
	case opts.Queue == "":
		return nil, errors.New("queue is required")
	case opts.Handler == nil:
		return nil, errors.New("handler is required")
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollTimeout
	if poll <= 0 {
		poll = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client:      opts.Client,
		queue:       opts.Queue,
		deadQueue:   opts.DeadQueue,
		handler:     opts.Handler,
		workers:     workers,
		pollTimeout: poll,
		logger:      logger.With("component", "jobqueue_runner", "queue", opts.Queue),
		metrics:     opts.Metrics,
	}, nil
}

// Enqueue pushes env onto queue.
func Enqueue(ctx context.Context, client redis.UniversalClient, queue string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := client.LPush(ctx, queue, raw).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", queue, err)
	}
	return nil
}

// Run starts worker goroutines and processes envelopes until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job queue runner", "workers", r.workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		ok, err := r.ProcessNext(ctx)
		switch {
		case err == nil, ok:
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
	return nil
}

// ProcessNext waits up to the poll timeout for one envelope and processes it.
// ok is false when the queue stayed empty.
func (r *Runner) ProcessNext(ctx context.Context) (bool, error) {
	res, err := r.client.BRPop(ctx, r.pollTimeout, r.queue).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pop %s: %w", r.queue, err)
	}
	// BRPOP replies with [key, value]
	if len(res) != 2 {
		return false, fmt.Errorf("pop %s: unexpected reply of %d elements", r.queue, len(res))
	}

	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		r.logger.ErrorContext(ctx, "dropping malformed envelope", "error", err)
		r.emit("malformed", metrics.ResultError)
		return true, nil
	}
	r.process(ctx, env)
	return true, nil
}

func (r *Runner) process(ctx context.Context, env Envelope) {
	err := r.handler(ctx, env)
	if err == nil {
		r.emit("completed", metrics.ResultSuccess)
		return
	}

	var retry *service.RetryError
	if errors.As(err, &retry) {
		env.Executions++
		if perr := Enqueue(context.WithoutCancel(ctx), r.client, r.queue, env); perr != nil {
			r.logger.ErrorContext(ctx, "requeue failed", "job", env.Class, "id", env.ID, "error", perr, "original_error", err)
		}
		r.emit("retried", metrics.ResultError)
		return
	}

	r.logger.WarnContext(ctx, "job failed", "job", env.Class, "id", env.ID, "executions", env.Executions+1, "error", err)
	if r.deadQueue != "" {
		if perr := Enqueue(context.WithoutCancel(ctx), r.client, r.deadQueue, env); perr != nil {
			r.logger.ErrorContext(ctx, "dead-letter push failed", "job", env.Class, "id", env.ID, "error", perr)
		}
	}
	r.emit("failed", metrics.ResultError)
}

func (r *Runner) emit(transition, result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.Count("jobqueue.processed", 1, map[string]string{
		"queue":      r.queue,
		"transition": transition,
		"result":     result,
	})
}
