package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/target/pulse/internal/domain/model"
)

// JobRunBuilder provides a fluent interface for building CreateJobRunRequest objects for testing.
type JobRunBuilder struct {
	req *model.CreateJobRunRequest
}

// NewJobRun creates a running job run for jobID at TestTime.
func NewJobRun(jobID int64) *JobRunBuilder {
	return &JobRunBuilder{
		req: &model.CreateJobRunRequest{
			JobID:      jobID,
			RunID:      uuid.NewString(),
			Status:     model.RunStatusRunning,
			OccurredAt: TestTime(),
			Adapter:    "test",
		},
	}
}

// WithRunID sets the correlation id.
func (b *JobRunBuilder) WithRunID(id string) *JobRunBuilder {
	b.req.RunID = id
	return b
}

// At sets the time the run occurred.
func (b *JobRunBuilder) At(t time.Time) *JobRunBuilder {
	b.req.OccurredAt = t
	return b
}

// Enqueued marks the run as waiting in a queue since t.
func (b *JobRunBuilder) Enqueued(t time.Time) *JobRunBuilder {
	b.req.Status = model.RunStatusEnqueued
	b.req.EnqueuedAt = &t
	return b
}

// WithAttempts sets the attempt counter.
func (b *JobRunBuilder) WithAttempts(n int) *JobRunBuilder {
	b.req.Attempts = n
	return b
}

// Build returns the request.
func (b *JobRunBuilder) Build() *model.CreateJobRunRequest {
	return b.req
}

// Succeeded returns a successful completion taking ms milliseconds.
func Succeeded(ms float64) model.Completion {
	return model.Completion{Status: model.RunStatusSuccess, Duration: ms}
}

// Failed returns a failed completion with the given error class.
func Failed(ms float64, class, message string) model.Completion {
	return model.Completion{
		Status:       model.RunStatusFailed,
		Duration:     ms,
		ErrorClass:   &class,
		ErrorMessage: &message,
	}
}

// CompletedRuns builds one terminal run per duration for entityID, spaced a minute apart from start.
// Durations listed in failed are marked failed.
func CompletedRuns(entityID int64, start time.Time, durations []float64, failed ...int) []model.CompletedRun {
	failedIdx := make(map[int]bool, len(failed))
	for _, i := range failed {
		failedIdx[i] = true
	}
	runs := make([]model.CompletedRun, 0, len(durations))
	for i, d := range durations {
		status := model.RunStatusSuccess
		if failedIdx[i] {
			status = model.RunStatusFailed
		}
		runs = append(runs, model.CompletedRun{
			EntityID:   entityID,
			OccurredAt: start.Add(time.Duration(i) * time.Minute),
			Duration:   d,
			Status:     status,
		})
	}
	return runs
}
