package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/model"
	"github.com/target/pulse/internal/testutil"
)

func TestIntegration_JobRunLifecycle(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		now := testutil.TestTime()
		repos := NewRepos(db, RepoConfig{TimeProvider: core.NewFixedTimeProvider(now)})

		job, err := repos.Jobs.FindOrCreate(ctx, "InvoiceJob", "billing")
		require.NoError(t, err)
		again, err := repos.Jobs.FindOrCreate(ctx, "InvoiceJob", "billing")
		require.NoError(t, err)
		assert.Equal(t, job.ID, again.ID)

		run, err := repos.Runs.Create(ctx, testutil.NewJobRun(job.ID).At(now).Build())
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		done, changed, err := repos.Runs.Complete(ctx, run.ID, testutil.Succeeded(120))
		require.NoError(t, err)
		require.True(t, changed)
		assert.Equal(t, model.RunStatusSuccess, done.Status)

		_, changed, err = repos.Runs.Complete(ctx, run.ID, testutil.Failed(5, "Timeout", "late"))
		require.NoError(t, err)
		assert.False(t, changed, "terminal runs are not overwritten")

		require.NoError(t, repos.Aggregates.Accumulate(ctx, core.AccumulateParams{
			Kind: core.ParentJob, ParentID: job.ID, Duration: 120,
		}))
		got, err := repos.Jobs.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ExecutionCount)
		assert.InDelta(t, 120, got.AvgDuration, 0.001)

		runs, err := repos.Summaries.CompletedRuns(ctx, model.SummarizableJob, now.Add(-time.Hour), now.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, job.ID, runs[0].EntityID)

		deleted, err := repos.Retention.DeleteOlderThan(ctx, core.DeleteOlderThanParams{
			Table: core.RetentionJobRuns, Cutoff: now.Add(time.Minute), BatchSize: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)
	})
}

func TestIntegration_ConcurrentAccumulate(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repos := NewRepos(db, RepoConfig{TimeProvider: core.NewFixedTimeProvider(testutil.TestTime())})

		job, err := repos.Jobs.FindOrCreate(ctx, "SyncJob", "default")
		require.NoError(t, err)

		const n = 20
		var g errgroup.Group
		var total float64
		for i := 1; i <= n; i++ {
			d := float64(i * 10)
			total += d
			g.Go(func() error {
				return repos.Aggregates.Accumulate(ctx, core.AccumulateParams{
					Kind: core.ParentJob, ParentID: job.ID, Duration: d, Failure: i%4 == 0,
				})
			})
		}
		require.NoError(t, g.Wait())

		got, err := repos.Jobs.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.ExecutionCount)
		assert.Equal(t, int64(n/4), got.FailuresCount)
		assert.InDelta(t, total/n, got.AvgDuration, 0.01)
	})
}

func TestIntegration_RedisCacheLock(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	cache := NewRedisCacheRepo(client, "pulse:test:")
	ctx := context.Background()

	ok, err := cache.SetIfNotExists(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cache.SetIfNotExists(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := cache.CompareAndDelete(ctx, "lock", []byte("b"))
	require.NoError(t, err)
	assert.False(t, released)

	released, err = cache.CompareAndDelete(ctx, "lock", []byte("a"))
	require.NoError(t, err)
	assert.True(t, released)
}
