// Package model defines the core data types shared by the collector, the aggregation passes and the read side.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// RunStatus is the lifecycle status of a unit of work (job run or request).
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type RunStatus string

const (
	// RunStatusEnqueued is the initial status of a run that carries a scheduling timestamp.
	RunStatusEnqueued RunStatus = "enqueued"
	// RunStatusRunning is the initial status of a run that started immediately.
	RunStatusRunning RunStatus = "running"
	// RunStatusSuccess indicates the wrapped work returned normally.
	RunStatusSuccess RunStatus = "success"
	// RunStatusFailed indicates the wrapped work returned a recoverable error.
	RunStatusFailed RunStatus = "failed"
	// RunStatusDiscarded indicates the wrapped work hit a fatal error.
	RunStatusDiscarded RunStatus = "discarded"
	// RunStatusRetried indicates the run failed and the queue will retry it.
	RunStatusRetried RunStatus = "retried"
)

// TerminalStatuses lists the statuses from which no further transition occurs.
var TerminalStatuses = []RunStatus{RunStatusSuccess, RunStatusFailed, RunStatusDiscarded, RunStatusRetried}

// NonTerminalStatuses lists the initial statuses.
var NonTerminalStatuses = []RunStatus{RunStatusEnqueued, RunStatusRunning}

// ErrNotTerminal is returned when a terminal transition targets a non-terminal status.
var ErrNotTerminal = errors.New("status is not terminal")

// Valid returns true if the status is one of the known statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusEnqueued, RunStatusRunning, RunStatusSuccess, RunStatusFailed, RunStatusDiscarded, RunStatusRetried:
		return true
	}
	return false
}

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailed, RunStatusDiscarded, RunStatusRetried:
		return true
	}
	return false
}

// IsFailure reports whether the status is final and not a success.
func (s RunStatus) IsFailure() bool {
	return s.IsTerminal() && s != RunStatusSuccess
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RunStatus) UnmarshalText(text []byte) error {
	v := RunStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid RunStatus: %q", v)
	}
	*s = v
	return nil
}

// StatusStrings converts statuses to their string form for SQL ANY($n) parameters.
func StatusStrings(statuses []RunStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Job is the parent entity for job runs: one logical job class on one queue.
type Job struct {
	ID             int64     `json:"id"              db:"id"`
	Name           string    `json:"name"            db:"name"`
	QueueName      string    `json:"queue_name"      db:"queue_name"`
	ExecutionCount int64     `json:"execution_count" db:"execution_count"`
	FailuresCount  int64     `json:"failures_count"  db:"failures_count"`
	RetriesCount   int64     `json:"retries_count"   db:"retries_count"`
	AvgDuration    float64   `json:"avg_duration"    db:"avg_duration"`
	Tags           Tags      `json:"tags"            db:"tags"`
	CreatedAt      time.Time `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"      db:"updated_at"`
}

// FailureRate returns failures as a percentage of executions rounded to two decimals.
func (j *Job) FailureRate() float64 {
	if j.ExecutionCount <= 0 {
		return 0
	}
	return RoundTo(float64(j.FailuresCount)/float64(j.ExecutionCount)*100, 2)
}

// JobRun is one execution of a Job.
type JobRun struct {
	ID           int64      `json:"id"                      db:"id"`
	JobID        int64      `json:"job_id"                  db:"job_id"`
	RunID        string     `json:"run_id"                  db:"run_id"`
	Status       RunStatus  `json:"status"                  db:"status"`
	OccurredAt   time.Time  `json:"occurred_at"             db:"occurred_at"`
	EnqueuedAt   *time.Time `json:"enqueued_at,omitempty"   db:"enqueued_at"`
	Duration     *float64   `json:"duration,omitempty"      db:"duration"`
	Attempts     int        `json:"attempts"                db:"attempts"`
	Adapter      string     `json:"adapter"                 db:"adapter"`
	ErrorClass   *string    `json:"error_class,omitempty"   db:"error_class"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	Arguments    *string    `json:"arguments,omitempty"     db:"arguments"`
	Tags         Tags       `json:"tags"                    db:"tags"`
	CreatedAt    time.Time  `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"              db:"updated_at"`
}

// AllTags returns the union of the run's tags and its job's tags.
func (r *JobRun) AllTags(job *Job) Tags {
	out := r.Tags.Clone()
	if job != nil {
		for _, t := range job.Tags {
			out.Add(t)
		}
	}
	return out
}

// CreateJobRunRequest carries the values persisted when a run begins.
type CreateJobRunRequest struct {
	JobID      int64
	RunID      string
	Status     RunStatus
	OccurredAt time.Time
	EnqueuedAt *time.Time
	Attempts   int
	Adapter    string
	Arguments  *string
}

// Validate validates the request fields.
func (r *CreateJobRunRequest) Validate() error {
	if r.JobID <= 0 {
		return errors.New("job id is required")
	}
	if strings.TrimSpace(r.RunID) == "" {
		return errors.New("run id is required")
	}
	if r.Status != RunStatusEnqueued && r.Status != RunStatusRunning {
		return fmt.Errorf("initial status must be enqueued or running, got %q", r.Status)
	}
	if r.Attempts < 0 {
		return errors.New("attempts must be >= 0")
	}
	return nil
}

// Completion carries the terminal values of a unit of work.
type Completion struct {
	Status       RunStatus
	Duration     float64
	ErrorClass   *string
	ErrorMessage *string
	HTTPStatus   *int
}

// Validate checks that the completion targets a terminal status with a usable duration.
func (c *Completion) Validate() error {
	if !c.Status.IsTerminal() {
		return fmt.Errorf("%w: %q", ErrNotTerminal, c.Status)
	}
	if c.Duration < 0 || math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0) {
		return fmt.Errorf("invalid duration %v", c.Duration)
	}
	return nil
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// NextAverage folds one duration into a running mean. A negative count is treated as zero.
func NextAverage(oldAvg float64, oldCount int64, d float64) float64 {
	if oldCount <= 0 {
		return d
	}
	n := float64(oldCount)
	return (oldAvg*n + d) / (n + 1)
}
