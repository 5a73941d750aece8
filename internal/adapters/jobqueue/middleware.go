// Package jobqueue adapts queue consumers to the collector.
//
// A consumer wraps its handler once:
//
//	handle := jobqueue.Middleware(collector, "redis-list", jobqueue.WithMaxAttempts(5))(process)
//	err := handle(ctx, envelope)
package jobqueue

import (
	"context"
	"errors"
	"time"

	"github.com/target/pulse/internal/service"
)

// Envelope is one job as delivered by a queue. Executions counts earlier attempts.
type Envelope struct {
	ID          string     `json:"id"`
	Class       string     `json:"class"`
	Queue       string     `json:"queue"`
	Args        any        `json:"args,omitempty"`
	EnqueuedAt  *time.Time `json:"enqueued_at,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Executions  int        `json:"executions"`
}

// Handler processes one envelope.
type Handler func(ctx context.Context, env Envelope) error

// Tracker records a unit of work. *service.Collector implements it.
type Tracker interface {
	TrackJob(ctx context.Context, d service.JobDescriptor, adapter string, work func(context.Context) error) error
}

type options struct {
	maxAttempts int
}

// Option configures Middleware.
type Option func(*options)

// WithMaxAttempts records failures as retried while attempts remain. Zero records every
// failure as final.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// Middleware tracks every envelope passed to the wrapped handler as a job run.
func Middleware(tracker Tracker, adapter string, opts ...Option) func(Handler) Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, env Envelope) error {
			d := Descriptor(env)
			return tracker.TrackJob(ctx, d, adapter, func(ctx context.Context) error {
				err := next(ctx, env)
				if err == nil || o.maxAttempts <= 0 || d.Attempts >= o.maxAttempts {
					return err
				}
				var retry *service.RetryError
				if errors.As(err, &retry) {
					return err
				}
				return service.MarkRetry(err)
			})
		}
	}
}

// Descriptor converts an envelope to the collector's job descriptor.
func Descriptor(env Envelope) service.JobDescriptor {
	queue := env.Queue
	if queue == "" {
		queue = "default"
	}
	return service.JobDescriptor{
		ID:          env.ID,
		Name:        env.Class,
		Queue:       queue,
		Arguments:   env.Args,
		EnqueuedAt:  env.EnqueuedAt,
		ScheduledAt: env.ScheduledAt,
		Attempts:    env.Executions + 1,
	}
}
