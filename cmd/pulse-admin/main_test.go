package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/domain/model"
	"github.com/target/pulse/internal/service"
)

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		assert.Contains(t, buf.String(), name)
	}
}

func TestParseBackfillFlags(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	opts, err := parseBackfillFlags([]string{"--start", "2026-03-01", "--periods", "day,hour"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), opts.Start)
	assert.Equal(t, now, opts.End)
	assert.Equal(t, []model.PeriodType{model.PeriodDay, model.PeriodHour}, opts.Periods)
	assert.Equal(t, defaultBackfillTimeout, opts.Timeout)

	opts, err = parseBackfillFlags([]string{"--start", "2026-03-01T06:00:00+02:00", "--end", "2026-03-02"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC), opts.Start)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), opts.End)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing start", args: nil, want: "--start is required"},
		{name: "bad start", args: []string{"--start", "yesterday"}, want: "--start"},
		{name: "reversed", args: []string{"--start", "2026-03-05", "--end", "2026-03-01"}, want: "before --end"},
		{name: "bad period", args: []string{"--start", "2026-03-01", "--periods", "fortnight"}, want: "--periods"},
		{name: "zero timeout", args: []string{"--start", "2026-03-01", "--timeout", "0s"}, want: "--timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBackfillFlags(tt.args, now)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseCardsFlags(t *testing.T) {
	opts, err := parseCardsFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, model.SummarizableJob, opts.Request.Type)
	assert.Nil(t, opts.Request.EntityID)

	opts, err = parseCardsFlags([]string{"--type", "Route", "--id", "7", "--json"})
	require.NoError(t, err)
	assert.Equal(t, model.SummarizableRoute, opts.Request.Type)
	require.NotNil(t, opts.Request.EntityID)
	assert.Equal(t, int64(7), *opts.Request.EntityID)
	assert.True(t, opts.JSON)

	_, err = parseCardsFlags([]string{"--type", "query"})
	require.Error(t, err)
}

func TestWriteCards(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCards(&buf, []model.MetricCard{{
		Title:   "Average Duration",
		Summary: "Across 12 runs",
		Value:   153.5,
		Unit:    "ms",
		Trend:   model.Trend{Direction: model.TrendUp, Amount: "12.5%"},
	}}))
	out := buf.String()
	assert.Contains(t, out, "Average Duration")
	assert.Contains(t, out, "153.50 ms")
	assert.Contains(t, out, "up 12.5%")
}

func TestParseJobsFlags(t *testing.T) {
	opts, err := parseJobsFlags([]string{"--queue", "mailers", "--sort", "avg_duration", "--dir", "desc"})
	require.NoError(t, err)
	require.NotNil(t, opts.List.Queue)
	assert.Equal(t, "mailers", *opts.List.Queue)
	assert.Nil(t, opts.List.Tag)
	assert.Equal(t, "avg_duration", opts.List.SortBy)
	assert.Equal(t, "desc", opts.List.SortOrder)
	assert.Equal(t, 50, opts.List.Limit)

	_, err = parseJobsFlags([]string{"--limit", "0"})
	require.Error(t, err)
}

func TestWriteJobs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJobs(&buf, []*model.JobWithPerformance{{
		Job:         model.Job{ID: 3, Name: "InvoiceJob", QueueName: "billing", ExecutionCount: 40, Tags: model.Tags{"critical"}},
		FailureRate: 2.5,
		Performance: model.PerformanceStatus("slow"),
	}}))
	out := buf.String()
	assert.Contains(t, out, "FAILURE %")
	assert.Contains(t, out, "InvoiceJob")
	assert.Contains(t, out, "2.50")
	assert.Contains(t, out, "critical")
}

func TestParseTagJobFlags(t *testing.T) {
	opts, err := parseTagJobFlags([]string{"--id", "9", "--tags", "critical, ,billing"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), opts.ID)
	assert.Equal(t, []string{"critical", "billing"}, opts.Tags)

	opts, err = parseTagJobFlags([]string{"--id", "9"})
	require.NoError(t, err)
	assert.Empty(t, opts.Tags)
	assert.NotNil(t, opts.Tags)

	_, err = parseTagJobFlags(nil)
	require.ErrorContains(t, err, "--id is required")
}

func TestParseRetentionFlags(t *testing.T) {
	opts, err := parseRetentionFlags([]string{"--yes"})
	require.NoError(t, err)
	assert.True(t, opts.Yes)
	assert.False(t, opts.AllowRemote)
	assert.Equal(t, defaultRetentionTimeout, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "-1s"})
	require.Error(t, err)
}

func TestWriteRetentionResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRetentionResult(&buf, service.RetentionResult{
		Steps: []service.RetentionStepResult{
			{Step: "job_runs", Deleted: 120},
			{Step: "requests", Error: context.DeadlineExceeded.Error()},
		},
		Deleted: 120,
	}))
	out := buf.String()
	assert.Contains(t, out, "job_runs")
	assert.Contains(t, out, "context deadline exceeded")
	assert.Contains(t, out, "total")
	assert.Regexp(t, `job_runs\s+120\s+-`, out)
}

func TestIsLikelyRemoteHost(t *testing.T) {
	tests := map[string]bool{
		"":               false,
		"localhost":      false,
		"127.0.0.1":      false,
		"::1":            false,
		"db.local":       false,
		"10.2.3.4":       true,
		"db.example.com": true,
	}
	for host, want := range tests {
		assert.Equal(t, want, isLikelyRemoteHost(host), host)
	}
}

func TestConfirmAction(t *testing.T) {
	var out bytes.Buffer
	cmdCtx := &commandContext{Out: &out, In: strings.NewReader("y\n")}
	require.NoError(t, cmdCtx.confirmAction(false, "delete rows"))
	assert.Contains(t, out.String(), "About to delete rows.")

	cmdCtx.In = strings.NewReader("\n")
	require.EqualError(t, cmdCtx.confirmAction(false, "delete rows"), "aborted by user")

	require.NoError(t, cmdCtx.confirmAction(true, "delete rows"))
}

func TestGuardRemoteHost(t *testing.T) {
	var out bytes.Buffer
	cmdCtx := &commandContext{
		Config: config.AppConfig{Postgres: config.DBConfig{Host: "db.example.com"}},
		Out:    &out,
		In:     strings.NewReader("db.example.com\n"),
	}

	remote, err := cmdCtx.guardRemoteHost(false, "delete rows")
	assert.True(t, remote)
	require.ErrorContains(t, err, "--allow-remote")

	remote, err = cmdCtx.guardRemoteHost(true, "delete rows")
	assert.True(t, remote)
	require.NoError(t, err)

	cmdCtx.Config.Postgres.Host = "localhost"
	remote, err = cmdCtx.guardRemoteHost(false, "delete rows")
	assert.False(t, remote)
	require.NoError(t, err)
}

func TestClearCardCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set("pulse:cards:job:all:2026-03-10", "[]"))
	require.NoError(t, mr.Set("pulse:cards:route:4:2026-03-10", "[]"))
	require.NoError(t, mr.Set("pulse:summarizer:lock", "1"))

	deleted, err := clearCardCache(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.False(t, mr.Exists("pulse:cards:job:all:2026-03-10"))
	assert.True(t, mr.Exists("pulse:summarizer:lock"))
}

func TestHasRedisConfig(t *testing.T) {
	assert.False(t, hasRedisConfig(nil))
	assert.False(t, hasRedisConfig(&config.RedisConfig{}))
	assert.True(t, hasRedisConfig(&config.RedisConfig{URI: "localhost:6379"}))
	assert.False(t, hasRedisConfig(&config.RedisConfig{UseSentinel: true}))
}
