package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/model"
	"github.com/target/pulse/internal/instrument"
	"github.com/target/pulse/internal/mocks"
	"github.com/target/pulse/internal/observability/statsd"
)

var collectorNow = time.Date(2024, 5, 6, 10, 30, 0, 0, time.UTC)

type collectorFixture struct {
	jobs     *mocks.MockJobRepository
	runs     *mocks.MockJobRunRepository
	routes   *mocks.MockRouteRepository
	requests *mocks.MockRequestRepository
	ops      *mocks.MockOperationRepository
	queries  *mocks.MockQueryRepository
	aggs     *mocks.MockAggregateRepository
	clock    *core.FixedTimeProvider
	sink     *statsd.MemorySink
}

func newCollectorFixture(t *testing.T) *collectorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	return &collectorFixture{
		jobs:     mocks.NewMockJobRepository(ctrl),
		runs:     mocks.NewMockJobRunRepository(ctrl),
		routes:   mocks.NewMockRouteRepository(ctrl),
		requests: mocks.NewMockRequestRepository(ctrl),
		ops:      mocks.NewMockOperationRepository(ctrl),
		queries:  mocks.NewMockQueryRepository(ctrl),
		aggs:     mocks.NewMockAggregateRepository(ctrl),
		clock:    core.NewFixedTimeProvider(collectorNow),
		sink:     &statsd.MemorySink{},
	}
}

func defaultTracking() config.TrackingConfig {
	cfg := config.TrackingConfig{
		Enabled:       true,
		TrackJobs:     true,
		TrackRequests: true,
		OwnNamespace:  "pulse.",
		MountPath:     "/pulse",
	}
	cfg.Sanitize()
	return cfg
}

func (f *collectorFixture) collector(t *testing.T, mutate func(*config.TrackingConfig, *CollectorOptions)) *Collector {
	t.Helper()
	acc, err := NewAccumulator(f.aggs)
	require.NoError(t, err)

	cfg := defaultTracking()
	opts := CollectorOptions{
		Repos: CollectorRepos{
			Jobs: f.jobs, Runs: f.runs, Routes: f.routes, Requests: f.requests,
			Operations: f.ops, Queries: f.queries,
		},
		Accumulator:  acc,
		TimeProvider: f.clock,
		Metrics:      f.sink,
	}
	if mutate != nil {
		mutate(&cfg, &opts)
	}
	if opts.Ignore == nil {
		ignore, err := NewIgnoreMatcher(cfg)
		require.NoError(t, err)
		opts.Ignore = ignore
	}
	c, err := NewCollector(opts)
	require.NoError(t, err)
	return c
}

func (f *collectorFixture) expectRunCreated(t *testing.T, status model.RunStatus) *model.JobRun {
	t.Helper()
	run := &model.JobRun{ID: 11, JobID: 7, RunID: "abc", Status: status, Adapter: "queue", OccurredAt: collectorNow}
	f.jobs.EXPECT().FindOrCreate(gomock.Any(), "ReportJob", "default").
		Return(&model.Job{ID: 7, Name: "ReportJob", QueueName: "default"}, nil)
	f.runs.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
			assert.True(t, instrument.Suppressed(ctx), "collector writes must not record spans")
			assert.Equal(t, status, req.Status)
			return run, nil
		})
	return run
}

func TestNewCollector_RequiredDependencies(t *testing.T) {
	f := newCollectorFixture(t)
	acc, err := NewAccumulator(f.aggs)
	require.NoError(t, err)

	_, err = NewCollector(CollectorOptions{Accumulator: acc})
	require.EqualError(t, err, "JobRepository is required")

	_, err = NewCollector(CollectorOptions{Repos: CollectorRepos{Jobs: f.jobs, Runs: f.runs, Operations: f.ops}})
	require.EqualError(t, err, "Accumulator is required")
}

func TestCollector_TrackJob_Success(t *testing.T) {
	f := newCollectorFixture(t)
	c := f.collector(t, nil)
	run := f.expectRunCreated(t, model.RunStatusRunning)

	f.ops.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, op *model.Operation) error {
		require.NotNil(t, op.JobRunID)
		assert.Equal(t, run.ID, *op.JobRunID)
		assert.Nil(t, op.RequestID)
		assert.Equal(t, model.OperationCacheRead, op.Type)
		return nil
	})
	f.runs.EXPECT().Complete(gomock.Any(), run.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, comp model.Completion) (*model.JobRun, bool, error) {
			assert.Equal(t, model.RunStatusSuccess, comp.Status)
			assert.InDelta(t, 150.0, comp.Duration, 1e-9)
			assert.Nil(t, comp.ErrorClass)
			done := *run
			done.Status, done.Duration = comp.Status, &comp.Duration
			return &done, true, nil
		})
	f.aggs.EXPECT().Accumulate(gomock.Any(), core.AccumulateParams{
		Kind: core.ParentJob, ParentID: 7, Duration: 150,
	}).Return(nil)

	err := c.TrackJob(context.Background(), JobDescriptor{ID: "abc", Name: "ReportJob", Queue: "default"}, "queue",
		func(ctx context.Context) error {
			instrument.Record(ctx, instrument.SpanDescriptor{Type: model.OperationCacheRead, Label: "GET k", Duration: 1})
			f.clock.Advance(150 * time.Millisecond)
			return nil
		})
	require.NoError(t, err)
	assert.InDelta(t, 1, f.sink.Sum("collector.unit_of_work", map[string]string{"kind": "job", "status": "success"}), 1e-9)
}

func TestCollector_TrackJob_ErrorPropagates(t *testing.T) {
	f := newCollectorFixture(t)
	c := f.collector(t, nil)
	run := f.expectRunCreated(t, model.RunStatusEnqueued)

	boom := errors.New("boom")
	f.runs.EXPECT().Complete(gomock.Any(), run.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, comp model.Completion) (*model.JobRun, bool, error) {
			assert.Equal(t, model.RunStatusFailed, comp.Status)
			require.NotNil(t, comp.ErrorClass)
			assert.Equal(t, "*errors.errorString", *comp.ErrorClass)
			assert.Equal(t, "boom", *comp.ErrorMessage)
			done := *run
			done.Status, done.Duration = comp.Status, &comp.Duration
			return &done, true, nil
		})
	f.aggs.EXPECT().Accumulate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p core.AccumulateParams) error {
			assert.True(t, p.Failure)
			assert.False(t, p.Retried)
			return nil
		})

	enq := collectorNow.Add(-time.Minute)
	err := c.TrackJob(context.Background(), JobDescriptor{ID: "abc", Name: "ReportJob", Queue: "default", EnqueuedAt: &enq}, "queue",
		func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Same(t, boom, err)
}

func TestCollector_TrackJob_SanitizesErrorMessage(t *testing.T) {
	f := newCollectorFixture(t)
	c := f.collector(t, nil)
	run := f.expectRunCreated(t, model.RunStatusEnqueued)

	bad := errors.New("bad \xff\xfe payload\x00" + strings.Repeat("é", 5000))
	f.runs.EXPECT().Complete(gomock.Any(), run.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, comp model.Completion) (*model.JobRun, bool, error) {
			require.NotNil(t, comp.ErrorMessage)
			msg := *comp.ErrorMessage
			assert.True(t, utf8.ValidString(msg))
			assert.NotContains(t, msg, "\x00")
			assert.LessOrEqual(t, len(msg), maxErrorMessageBytes)
			assert.True(t, strings.HasPrefix(msg, "bad \uFFFD payload"))
			assert.True(t, strings.HasSuffix(msg, TruncationMarker))
			done := *run
			done.Status, done.Duration = comp.Status, &comp.Duration
			return &done, true, nil
		})
	f.aggs.EXPECT().Accumulate(gomock.Any(), gomock.Any()).Return(nil)

	enq := collectorNow.Add(-time.Minute)
	err := c.TrackJob(context.Background(), JobDescriptor{ID: "abc", Name: "ReportJob", Queue: "default", EnqueuedAt: &enq}, "queue",
		func(context.Context) error { return bad })
	require.ErrorIs(t, err, bad)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage(errors.New("boom")))
	assert.Equal(t, "a\uFFFDb", errorMessage(errors.New("a\xffb")))
	assert.Equal(t, "ab", errorMessage(errors.New("a\x00b")))
}

func TestCollector_TrackJob_RetryMarked(t *testing.T) {
	f := newCollectorFixture(t)
	c := f.collector(t, nil)
	run := f.expectRunCreated(t, model.RunStatusRunning)

	f.runs.EXPECT().Complete(gomock.Any(), run.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, comp model.Completion) (*model.JobRun, bool, error) {
			assert.Equal(t, model.RunStatusRetried, comp.Status)
			assert.Equal(t, "*errors.errorString", *comp.ErrorClass)
			done := *run
			done.Status, done.Duration = comp.Status, &comp.Duration
			return &done, true, nil
		})
	f.aggs.EXPECT().Accumulate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p core.AccumulateParams) error {
			assert.True(t, p.Failure)
			assert.True(t, p.Retried)
			return nil
		})

	err := c.TrackJob(context.Background(), JobDescriptor{ID: "abc", Name: "ReportJob", Queue: "default"}, "queue",
		func(context.Context) error { return MarkRetry(errors.New("try later")) })
	require.Error(t, err)
}

func TestCollector_TrackJob_PanicDiscardedAndRepanicked(t *testing.T) {
	f := newCollectorFixture(t)
	c := f.collector(t, nil)
	run := f.expectRunCreated(t, model.RunStatusRunning)

	f.runs.EXPECT().Complete(gomock.Any(), run.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, comp model.Completion) (*model.JobRun, bool, error) {
			assert.Equal(t, model.RunStatusDiscarded, comp.Status)
			assert.Equal(t, "string", *comp.ErrorClass)
			return nil, false, nil
		})

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = c.TrackJob(context.Background(), JobDescriptor{ID: "abc", Name: "ReportJob", Queue: "default"}, "queue",
			func(context.Context) error { panic("kaboom") })
	})
}

func TestCollector_TrackJob_AlreadyTerminalSkipsAccumulator(t *testing.T) {
	f := newCollectorFixture(t)
	c := f.collector(t, nil)
	run := f.expectRunCreated(t, model.RunStatusRunning)

	f.runs.EXPECT().Complete(gomock.Any(), run.ID, gomock.Any()).Return(nil, false, nil)
	// no Accumulate expectation: a call would fail the test

	require.NoError(t, c.TrackJob(context.Background(), JobDescriptor{ID: "abc", Name: "ReportJob", Queue: "default"}, "queue",
		func(context.Context) error { return nil }))
}

func TestCollector_TrackJob_CompleteErrorReturnedOnlyOnSuccess(t *testing.T) {
	dbErr := errors.New("db down")

	t.Run("success path returns instrumentation error", func(t *testing.T) {
		f := newCollectorFixture(t)
		c := f.collector(t, nil)
		run := f.expectRunCreated(t, model.RunStatusRunning)
		f.runs.EXPECT().Complete(gomock.Any(), run.ID, gomock.Any()).Return(nil, false, dbErr)

		err := c.TrackJob(context.Background(), JobDescriptor{ID: "abc", Name: "ReportJob", Queue: "default"}, "queue",
			func(context.Context) error { return nil })
		require.ErrorIs(t, err, dbErr)
	})

	t.Run("error path returns work error", func(t *testing.T) {
		f := newCollectorFixture(t)
		c := f.collector(t, nil)
		run := f.expectRunCreated(t, model.RunStatusRunning)
		f.runs.EXPECT().Complete(gomock.Any(), run.ID, gomock.Any()).Return(nil, false, dbErr)

		workErr := errors.New("work failed")
		err := c.TrackJob(context.Background(), JobDescriptor{ID: "abc", Name: "ReportJob", Queue: "default"}, "queue",
			func(context.Context) error { return workErr })
		assert.Same(t, workErr, err)
	})
}

func TestCollector_TrackJob_CreateFailureRunsUntracked(t *testing.T) {
	f := newCollectorFixture(t)
	c := f.collector(t, nil)
	f.jobs.EXPECT().FindOrCreate(gomock.Any(), "ReportJob", "default").Return(nil, errors.New("no db"))

	ran := false
	err := c.TrackJob(context.Background(), JobDescriptor{Name: "ReportJob", Queue: "default"}, "queue",
		func(ctx context.Context) error {
			ran = true
			assert.Nil(t, instrument.ScopeFrom(ctx))
			return nil
		})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.InDelta(t, 1, f.sink.Sum("collector.errors", map[string]string{"stage": "find_job"}), 1e-9)
}

func TestCollector_TrackJob_Ignored(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.TrackingConfig, *CollectorOptions)
		job    JobDescriptor
		reason string
	}{
		{name: "own namespace", job: JobDescriptor{Name: "pulse.SummaryJob", Queue: "default"}, reason: IgnoreReasonNamespace},
		{
			name:   "ignored job",
			mutate: func(cfg *config.TrackingConfig, _ *CollectorOptions) { cfg.IgnoredJobs = []string{"NoisyJob"} },
			job:    JobDescriptor{Name: "NoisyJob", Queue: "default"},
			reason: IgnoreReasonJob,
		},
		{
			name:   "ignored queue regex",
			mutate: func(cfg *config.TrackingConfig, _ *CollectorOptions) { cfg.IgnoredQueues = []string{"/^low_/"} },
			job:    JobDescriptor{Name: "ReportJob", Queue: "low_priority"},
			reason: IgnoreReasonQueue,
		},
		{
			name:   "jobs disabled",
			mutate: func(cfg *config.TrackingConfig, _ *CollectorOptions) { cfg.TrackJobs = false },
			job:    JobDescriptor{Name: "ReportJob", Queue: "default"},
			reason: IgnoreReasonDisabled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCollectorFixture(t)
			c := f.collector(t, tt.mutate)

			workErr := errors.New("still returned")
			err := c.TrackJob(context.Background(), tt.job, "queue", func(context.Context) error { return workErr })
			assert.Same(t, workErr, err)
			assert.InDelta(t, 1, f.sink.Sum("collector.unit_of_work", map[string]string{"status": "ignored", "reason": tt.reason}), 1e-9)
		})
	}
}

func TestCollector_TrackJob_SQLSpanLinksQuery(t *testing.T) {
	f := newCollectorFixture(t)
	c := f.collector(t, nil)
	run := f.expectRunCreated(t, model.RunStatusRunning)

	f.queries.EXPECT().FindOrCreate(gomock.Any(), "fp1", "SELECT ?").Return(&model.Query{ID: 99}, nil)
	f.ops.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, op *model.Operation) error {
		require.NotNil(t, op.QueryID)
		assert.Equal(t, int64(99), *op.QueryID)
		return nil
	})
	f.ops.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("insert failed"))
	f.runs.EXPECT().Complete(gomock.Any(), run.ID, gomock.Any()).Return(nil, false, nil)

	err := c.TrackJob(context.Background(), JobDescriptor{ID: "abc", Name: "ReportJob", Queue: "default"}, "queue",
		func(ctx context.Context) error {
			instrument.Record(ctx, instrument.SpanDescriptor{
				Type: model.OperationSQL, Label: "SELECT ?", QueryFingerprint: "fp1", NormalizedSQL: "SELECT ?",
			})
			instrument.Record(ctx, instrument.SpanDescriptor{Type: model.OperationHTTP, Label: "GET example.com"})
			return nil
		})
	require.NoError(t, err)
	assert.InDelta(t, 1, f.sink.Sum("collector.errors", map[string]string{"stage": "save_operation"}), 1e-9)
}

func TestCollector_TrackJob_CapturesArguments(t *testing.T) {
	f := newCollectorFixture(t)
	capture, err := NewArgumentCapture(ArgumentCaptureOptions{Enabled: true, Expression: "report_id"})
	require.NoError(t, err)
	c := f.collector(t, func(_ *config.TrackingConfig, opts *CollectorOptions) { opts.Arguments = capture })

	f.jobs.EXPECT().FindOrCreate(gomock.Any(), "ReportJob", "default").Return(&model.Job{ID: 7}, nil)
	f.runs.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
			require.NotNil(t, req.Arguments)
			assert.Equal(t, "42", *req.Arguments)
			assert.NotEmpty(t, req.RunID)
			assert.Equal(t, 2, req.Attempts)
			return &model.JobRun{ID: 1, JobID: 7, RunID: req.RunID}, nil
		})
	f.runs.EXPECT().Complete(gomock.Any(), int64(1), gomock.Any()).Return(nil, false, nil)

	require.NoError(t, c.TrackJob(context.Background(), JobDescriptor{
		Name: "ReportJob", Queue: "default", Attempts: 2, Arguments: map[string]any{"report_id": 42},
	}, "queue", func(context.Context) error { return nil }))
}

func TestCollector_Middleware(t *testing.T) {
	f := newCollectorFixture(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		instrument.Record(r.Context(), instrument.SpanDescriptor{Type: model.OperationController, Label: "users#show"})
		f.clock.Advance(40 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := f.collector(t, func(_ *config.TrackingConfig, opts *CollectorOptions) { opts.Routes = ServeMuxResolver(mux) })
	handler := c.Middleware(mux)

	t.Run("success on resolved route", func(t *testing.T) {
		f.routes.EXPECT().FindOrCreate(gomock.Any(), "GET", "/users/{id}").Return(&model.Route{ID: 3, Method: "GET", Path: "/users/{id}"}, nil)
		f.requests.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateRequestRequest) (*model.Request, error) {
				assert.Equal(t, "req-1", req.RequestID)
				assert.Equal(t, "GET /users/{id}", req.ControllerAction)
				return &model.Request{ID: 5, RouteID: 3, RequestID: req.RequestID}, nil
			})
		f.ops.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, op *model.Operation) error {
			require.NotNil(t, op.RequestID)
			assert.Equal(t, int64(5), *op.RequestID)
			return nil
		})
		f.requests.EXPECT().Complete(gomock.Any(), int64(5), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ int64, comp model.Completion) (*model.Request, bool, error) {
				assert.Equal(t, model.RunStatusSuccess, comp.Status)
				assert.Equal(t, http.StatusCreated, *comp.HTTPStatus)
				return &model.Request{ID: 5, RouteID: 3, Status: comp.Status, Duration: &comp.Duration}, true, nil
			})
		f.aggs.EXPECT().Accumulate(gomock.Any(), core.AccumulateParams{Kind: core.ParentRoute, ParentID: 3, Duration: 40}).Return(nil)

		req := httptest.NewRequest(http.MethodGet, "/users/42", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("5xx recorded as failed", func(t *testing.T) {
		f.routes.EXPECT().FindOrCreate(gomock.Any(), "GET", "/boom").Return(&model.Route{ID: 4}, nil)
		f.requests.EXPECT().Create(gomock.Any(), gomock.Any()).Return(&model.Request{ID: 6, RouteID: 4}, nil)
		f.requests.EXPECT().Complete(gomock.Any(), int64(6), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ int64, comp model.Completion) (*model.Request, bool, error) {
				assert.Equal(t, model.RunStatusFailed, comp.Status)
				assert.Equal(t, http.StatusBadGateway, *comp.HTTPStatus)
				return &model.Request{ID: 6, RouteID: 4, Status: comp.Status, Duration: &comp.Duration}, true, nil
			})
		f.aggs.EXPECT().Accumulate(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, p core.AccumulateParams) error {
				assert.True(t, p.Failure)
				return nil
			})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("health and assets ignored", func(t *testing.T) {
		for _, path := range []string{"/healthz", "/assets/app.js", "/pulse/api/cards"} {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		}
		assert.InDelta(t, 3, f.sink.Sum("collector.unit_of_work", map[string]string{"kind": "request", "status": "ignored"}), 1e-9)
	})
}

func TestCollector_MiddlewarePanic(t *testing.T) {
	f := newCollectorFixture(t)
	c := f.collector(t, nil)
	handler := c.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("handler exploded") }))

	f.routes.EXPECT().FindOrCreate(gomock.Any(), "POST", "/orders").Return(&model.Route{ID: 9}, nil)
	f.requests.EXPECT().Create(gomock.Any(), gomock.Any()).Return(&model.Request{ID: 10, RouteID: 9}, nil)
	f.requests.EXPECT().Complete(gomock.Any(), int64(10), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, comp model.Completion) (*model.Request, bool, error) {
			assert.Equal(t, model.RunStatusDiscarded, comp.Status)
			assert.Equal(t, http.StatusInternalServerError, *comp.HTTPStatus)
			return nil, false, nil
		})

	assert.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/orders", nil))
	})
}

func TestSplitPattern(t *testing.T) {
	tests := map[string][2]string{
		"GET /users/{id}":         {"GET", "/users/{id}"},
		"/static/":                {"", "/static/"},
		"POST example.com/hook":   {"POST", "/hook"},
		"example.com/hosted/path": {"", "/hosted/path"},
	}
	for pattern, want := range tests {
		method, path := splitPattern(pattern)
		assert.Equal(t, want[0], method, pattern)
		assert.Equal(t, want[1], path, pattern)
	}
}
