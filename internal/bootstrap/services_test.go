package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/domain/model"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{name: "no services enabled", want: 0},
		{name: "http only", modes: []config.ServiceMode{config.ServiceModeHTTP}, want: 1},
		{
			name:  "all services enabled",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeSummarizer, config.ServiceModeRetention},
			want:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}
			assert.Equal(t, tt.want, errorChannelCapacity(enabled))
			assert.Equal(t, tt.want+1, errorChannelBufferSize(enabled))
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "retention, http"}
	assert.Equal(t, []string{"http", "retention"}, GetEnabledServices(cfg))

	cfg.Services = "http,bogus"
	assert.Empty(t, GetEnabledServices(cfg))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestInitLogger_Level(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := initLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVICES", "http,summarizer")
	t.Setenv("SUMMARY_PERIODS", "day,hour")
	t.Setenv("PULSE_JOB_THRESHOLDS", "10,20,30")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsSummarizerEnabled())
	assert.False(t, cfg.IsRetentionEnabled())
	assert.Equal(t, model.Thresholds{Slow: 10, VerySlow: 20, Critical: 30}, cfg.Tracking.JobThresholds)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("SUMMARY_SCHEDULE", "every so often")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "invalid config")
}

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := LoadConfig()
	require.NoError(t, err)
	return &cfg
}

func TestNewServices(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.DiscardHandler)
	svcs, err := NewServices(&ServiceDeps{Config: testAppConfig(t), DB: db, RedisClient: rdb, Logger: logger})
	require.NoError(t, err)

	assert.NotNil(t, svcs.Collector)
	assert.NotNil(t, svcs.Jobs)
	assert.NotNil(t, svcs.Cards)
	assert.NotNil(t, svcs.Summarizer)
	assert.NotNil(t, svcs.Retention)
	assert.NotNil(t, svcs.Observability.Notifier)
	assert.Nil(t, svcs.Observability.MetricsSink)
}

func TestNewServices_RequiresDB(t *testing.T) {
	_, err := NewServices(&ServiceDeps{Config: &config.AppConfig{}})
	require.EqualError(t, err, "database connection is required")
	_, err = NewServices(nil)
	require.EqualError(t, err, "service config is required")
}

func TestBuildHTTPHandler_Readiness(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	cfg := testAppConfig(t)
	h := BuildHTTPHandler(&HTTPServerConfig{Config: cfg, DB: db}, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWaitForShutdown_ServiceError(t *testing.T) {
	errCh := make(chan error, 1)
	done := make(chan struct{})
	cancelled := false

	go func() {
		errCh <- errors.New("summarizer failed: boom")
	}()
	close(done)

	err := waitForShutdown(shutdownConfig{
		quit:        make(chan os.Signal),
		cancel:      func() { cancelled = true },
		errCh:       errCh,
		logger:      slog.New(slog.DiscardHandler),
		backgrounds: []backgroundServiceHandle{{name: "summarizer", done: done}},
	})
	require.EqualError(t, err, "summarizer failed: boom")
	assert.True(t, cancelled)
}

func TestLaunchBackground_ReportsError(t *testing.T) {
	errCh := make(chan error, 1)
	deps := &serviceStartupDeps{
		ctx:             context.Background(),
		logger:          slog.New(slog.DiscardHandler),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeRetention: true},
		errCh:           errCh,
	}

	done := launchBackground(deps.ctx, deps, backgroundService{
		mode:  config.ServiceModeRetention,
		name:  "retention",
		start: func(context.Context) error { return errors.New("delete failed") },
	})
	require.NotNil(t, done)

	select {
	case err := <-errCh:
		require.EqualError(t, err, "retention failed: delete failed")
	case <-time.After(time.Second):
		t.Fatal("error not reported")
	}
	<-done

	assert.Nil(t, launchBackground(deps.ctx, deps, backgroundService{mode: config.ServiceModeSummarizer}))
}
