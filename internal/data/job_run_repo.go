package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

var _ core.JobRunRepository = (*JobRunRepo)(nil)

// nonTerminalPredicate guards terminal updates so a record is transitioned exactly once.
const nonTerminalPredicate = `status IN ('enqueued', 'running')`

const jobRunColumns = `id, job_id, run_id, status, occurred_at, enqueued_at, duration, attempts, adapter,
	error_class, error_message, arguments, tags, created_at, updated_at`

// JobRunRepo provides database operations for job runs.
type JobRunRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
	logger       *slog.Logger
}

// NewJobRunRepo creates a new JobRunRepo.
func NewJobRunRepo(db *sql.DB, cfg RepoConfig) *JobRunRepo {
	return &JobRunRepo{DB: db, timeProvider: cfg.clock(), logger: cfg.logger()}
}

func scanJobRun(row scanner) (*model.JobRun, error) {
	var jr model.JobRun
	if err := row.Scan(
		&jr.ID, &jr.JobID, &jr.RunID, &jr.Status, &jr.OccurredAt, &jr.EnqueuedAt, &jr.Duration,
		&jr.Attempts, &jr.Adapter, &jr.ErrorClass, &jr.ErrorMessage, &jr.Arguments, &jr.Tags,
		&jr.CreatedAt, &jr.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &jr, nil
}

// Create inserts a job run in its initial non-terminal status.
func (r *JobRunRepo) Create(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
	if req == nil {
		return nil, apperrors.Validationf("create job run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job run")
	}

	now := nowUTC(r.timeProvider)
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO job_runs (job_id, run_id, status, occurred_at, enqueued_at, attempts, adapter, arguments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+jobRunColumns,
		req.JobID, strings.TrimSpace(req.RunID), req.Status, req.OccurredAt.UTC(), utcPtr(req.EnqueuedAt),
		req.Attempts, req.Adapter, req.Arguments, now,
	)
	jr, err := scanJobRun(row)
	if err != nil {
		return nil, wrapErr("create job run", err, nil)
	}
	return jr, nil
}

// Complete moves a non-terminal run to c.Status. An already-terminal run is left untouched and
// reported with changed=false.
func (r *JobRunRepo) Complete(ctx context.Context, id int64, c model.Completion) (*model.JobRun, bool, error) {
	if err := c.Validate(); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid completion")
	}

	row := r.DB.QueryRowContext(ctx, `
		UPDATE job_runs
		SET status = $2, duration = $3, error_class = $4, error_message = $5, updated_at = $6
		WHERE id = $1 AND `+nonTerminalPredicate+`
		RETURNING `+jobRunColumns,
		id, c.Status, model.RoundTo(c.Duration, 2), c.ErrorClass, c.ErrorMessage, nowUTC(r.timeProvider),
	)
	jr, err := scanJobRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, wrapErr("complete job run", err, nil)
	}
	return jr, true, nil
}

// GetByRunID retrieves a job run by its correlation id.
func (r *JobRunRepo) GetByRunID(ctx context.Context, runID string) (*model.JobRun, error) {
	jr, err := scanJobRun(r.DB.QueryRowContext(ctx, `SELECT `+jobRunColumns+` FROM job_runs WHERE run_id = $1`, runID))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get job run %q", runID), err, ErrJobRunNotFound)
	}
	return jr, nil
}
