package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pulse/internal/observability/statsd"
	"github.com/target/pulse/internal/service"
)

func setupQueue(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestRunner(t *testing.T, client redis.UniversalClient, h Handler, sink statsd.Sink) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerOptions{
		Client:      client,
		Queue:       "jobs",
		DeadQueue:   "jobs:dead",
		Handler:     h,
		PollTimeout: 50 * time.Millisecond,
		Logger:      slog.New(slog.DiscardHandler),
		Metrics:     sink,
	})
	require.NoError(t, err)
	return r
}

func popEnvelope(t *testing.T, mr *miniredis.Miniredis, key string) Envelope {
	t.Helper()
	raw, err := mr.Lpop(key)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env
}

func TestNewRunner_Validation(t *testing.T) {
	_, client := setupQueue(t)
	noop := func(context.Context, Envelope) error { return nil }

	_, err := NewRunner(RunnerOptions{Queue: "jobs", Handler: noop})
	require.EqualError(t, err, "redis client is required")
	_, err = NewRunner(RunnerOptions{Client: client, Handler: noop})
	require.EqualError(t, err, "queue is required")
	_, err = NewRunner(RunnerOptions{Client: client, Queue: "jobs"})
	require.EqualError(t, err, "handler is required")
}

func TestRunner_ProcessNext(t *testing.T) {
	mr, client := setupQueue(t)
	ctx := context.Background()
	sink := &statsd.MemorySink{}

	var got Envelope
	r := newTestRunner(t, client, func(_ context.Context, env Envelope) error {
		got = env
		return nil
	}, sink)

	require.NoError(t, Enqueue(ctx, client, "jobs", Envelope{ID: "j-1", Class: "ReportJob", Queue: "default"}))
	ok, err := r.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ReportJob", got.Class)
	assert.False(t, mr.Exists("jobs"))
	assert.InDelta(t, 1.0, sink.Sum("jobqueue.processed", map[string]string{"transition": "completed"}), 1e-9)
}

func TestRunner_RetryRequeues(t *testing.T) {
	mr, client := setupQueue(t)
	ctx := context.Background()
	r := newTestRunner(t, client, func(context.Context, Envelope) error {
		return service.MarkRetry(errors.New("upstream 503"))
	}, nil)

	require.NoError(t, Enqueue(ctx, client, "jobs", Envelope{ID: "j-1", Class: "SyncJob", Executions: 1}))
	_, err := r.ProcessNext(ctx)
	require.NoError(t, err)

	env := popEnvelope(t, mr, "jobs")
	assert.Equal(t, 2, env.Executions)
	assert.False(t, mr.Exists("jobs:dead"))
}

func TestRunner_FailureDeadLetters(t *testing.T) {
	mr, client := setupQueue(t)
	ctx := context.Background()
	r := newTestRunner(t, client, func(context.Context, Envelope) error {
		return errors.New("invalid report")
	}, nil)

	require.NoError(t, Enqueue(ctx, client, "jobs", Envelope{ID: "j-9", Class: "ReportJob"}))
	_, err := r.ProcessNext(ctx)
	require.NoError(t, err)

	assert.False(t, mr.Exists("jobs"))
	assert.Equal(t, "j-9", popEnvelope(t, mr, "jobs:dead").ID)
}

func TestRunner_MalformedEnvelopeDropped(t *testing.T) {
	mr, client := setupQueue(t)
	_, err := mr.Lpush("jobs", "{not json")
	require.NoError(t, err)

	called := false
	r := newTestRunner(t, client, func(context.Context, Envelope) error {
		called = true
		return nil
	}, nil)

	ok, err := r.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, called)
}

func TestRunner_RunProcessesUntilCancelled(t *testing.T) {
	_, client := setupQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var processed atomic.Int32
	r := newTestRunner(t, client, func(context.Context, Envelope) error {
		processed.Add(1)
		return nil
	}, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, Enqueue(ctx, client, "jobs", Envelope{ID: id, Class: "ReportJob"}))
	}

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return processed.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
