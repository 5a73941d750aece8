package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/domain/model"
)

func TestParentCache_GetSet(t *testing.T) {
	c := NewParentCache(ParentCacheConfig{Capacity: 4})

	_, ok := c.Get(jobCacheKey("ReportJob", "default"))
	assert.False(t, ok)

	c.Set(jobCacheKey("ReportJob", "default"), 7)
	c.Set(routeCacheKey("GET", "/users/{id}"), 3)

	id, ok := c.Get(jobCacheKey("ReportJob", "default"))
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	// same name on another queue is a different job
	_, ok = c.Get(jobCacheKey("ReportJob", "mailers"))
	assert.False(t, ok)

	c.Set(jobCacheKey("ReportJob", "default"), 8)
	id, _ = c.Get(jobCacheKey("ReportJob", "default"))
	assert.Equal(t, int64(8), id)

	st := c.Stats()
	assert.Equal(t, uint64(2), st.Hits)
	assert.Equal(t, uint64(2), st.Misses)
	assert.Equal(t, 2, st.Size)
	assert.Equal(t, 4, st.Capacity)
}

func TestParentCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewParentCache(ParentCacheConfig{Capacity: 2})
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestParentCache_TTL(t *testing.T) {
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	c := NewParentCache(ParentCacheConfig{Capacity: 8, TTL: time.Minute, Now: func() time.Time { return now }})
	c.Set("a", 1)

	now = now.Add(30 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(31 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestParentCache_Nil(t *testing.T) {
	var c *ParentCache
	c.Set("a", 1)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, ParentCacheStats{}, c.Stats())
}

func TestCollector_TrackJob_ReusesCachedParent(t *testing.T) {
	f := newCollectorFixture(t)
	parents := NewParentCache(DefaultParentCacheConfig())
	c := f.collector(t, func(_ *config.TrackingConfig, o *CollectorOptions) { o.Parents = parents })

	f.jobs.EXPECT().FindOrCreate(gomock.Any(), "ReportJob", "default").
		Return(&model.Job{ID: 7, Name: "ReportJob", QueueName: "default"}, nil).Times(1)
	f.runs.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
			assert.Equal(t, int64(7), req.JobID)
			return &model.JobRun{ID: 11, JobID: req.JobID, RunID: req.RunID, Status: req.Status}, nil
		}).Times(2)
	f.runs.EXPECT().Complete(gomock.Any(), int64(11), gomock.Any()).Return(nil, false, nil).Times(2)

	for range 2 {
		require.NoError(t, c.TrackJob(context.Background(), JobDescriptor{Name: "ReportJob", Queue: "default"}, "queue",
			func(context.Context) error { return nil }))
	}
	assert.Equal(t, uint64(1), parents.Stats().Hits)
}
