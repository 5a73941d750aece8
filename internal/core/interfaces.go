package core

import (
	"context"
	"time"

	"github.com/target/pulse/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces; internal/data provides the Postgres implementations.

// JobRepository defines the interface for job (parent entity) data operations.
type JobRepository interface {
	// FindOrCreate returns the job named name, creating it on first sight.
	// The queue name is refreshed when it changed.
	FindOrCreate(ctx context.Context, name, queue string) (*model.Job, error)
	GetByID(ctx context.Context, id int64) (*model.Job, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	SetTags(ctx context.Context, id int64, tags model.Tags) (*model.Job, error)
	// CountCreated counts jobs first seen in [from, to).
	CountCreated(ctx context.Context, from, to time.Time) (int64, error)
	// CountCreatedByDay counts jobs first seen in [from, to), keyed by UTC midnight.
	// Days with no new jobs are absent.
	CountCreatedByDay(ctx context.Context, from, to time.Time) (map[time.Time]int64, error)
}

// JobRunRepository defines the interface for job run (unit of work) data operations.
type JobRunRepository interface {
	Create(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error)
	// Complete moves a non-terminal run to a terminal status. The bool reports whether a row
	// changed; an already-terminal run returns (nil, false, nil).
	Complete(ctx context.Context, id int64, c model.Completion) (*model.JobRun, bool, error)
	GetByRunID(ctx context.Context, runID string) (*model.JobRun, error)
}

// RouteRepository defines the interface for route (parent entity) data operations.
type RouteRepository interface {
	FindOrCreate(ctx context.Context, method, path string) (*model.Route, error)
	GetByID(ctx context.Context, id int64) (*model.Route, error)
}

// RequestRepository defines the interface for HTTP request (unit of work) data operations.
type RequestRepository interface {
	Create(ctx context.Context, req *model.CreateRequestRequest) (*model.Request, error)
	// Complete has the same conditional semantics as JobRunRepository.Complete.
	Complete(ctx context.Context, id int64, c model.Completion) (*model.Request, bool, error)
}

// OperationRepository persists spans.
type OperationRepository interface {
	Insert(ctx context.Context, op *model.Operation) error
}

// QueryRepository stores normalized SQL by fingerprint.
type QueryRepository interface {
	FindOrCreate(ctx context.Context, fingerprint, normalizedSQL string) (*model.Query, error)
}

// ParentKind names the table whose running totals an accumulation updates.
type ParentKind string

const (
	ParentJob   ParentKind = "job"
	ParentRoute ParentKind = "route"
)

// AccumulateParams groups parameters for AggregateRepository.Accumulate.
type AccumulateParams struct {
	Kind     ParentKind
	ParentID int64
	Duration float64
	Failure  bool
	Retried  bool
}

// AggregateRepository folds one terminal duration into a parent's running totals.
type AggregateRepository interface {
	// Accumulate locks the parent row, applies model.NextAverage and the counter increments,
	// and commits in a single transaction.
	Accumulate(ctx context.Context, params AccumulateParams) error
}

// SummaryRepository defines the interface for summary rollups.
type SummaryRepository interface {
	// Upsert inserts or fully overwrites the summary for its unique key.
	Upsert(ctx context.Context, s *model.Summary) error
	List(ctx context.Context, filter model.SummaryFilter) ([]*model.Summary, error)
	// CompletedRuns loads terminal units of work with a duration that occurred in [from, to).
	CompletedRuns(ctx context.Context, typ model.SummarizableType, from, to time.Time) ([]model.CompletedRun, error)
}

// RetentionTable names a table the retention policy may trim.
type RetentionTable string

const (
	RetentionJobRuns    RetentionTable = "job_runs"
	RetentionRequests   RetentionTable = "requests"
	RetentionOperations RetentionTable = "operations"
)

// DeleteOlderThanParams groups parameters for RetentionRepository.DeleteOlderThan.
type DeleteOlderThanParams struct {
	Table     RetentionTable
	Cutoff    time.Time
	BatchSize int
}

// TrimToLimitParams groups parameters for RetentionRepository.TrimToLimit.
type TrimToLimitParams struct {
	Table     RetentionTable
	MaxRows   int
	BatchSize int
}

// RetentionRepository defines the interface for telemetry cleanup operations.
type RetentionRepository interface {
	// DeleteOlderThan deletes up to BatchSize rows that occurred before Cutoff.
	// Returns the number of rows deleted.
	DeleteOlderThan(ctx context.Context, params DeleteOlderThanParams) (int64, error)

	// TrimToLimit deletes up to BatchSize of the oldest rows while the table holds more
	// than MaxRows. Returns the number of rows deleted.
	TrimToLimit(ctx context.Context, params TrimToLimitParams) (int64, error)
}
