package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/data/database"
	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var _ core.JobRepository = (*JobRepo)(nil)

// JobRepo provides database operations for tracked job classes.
type JobRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	return &JobRepo{DB: db, timeProvider: cfg.clock(), logger: cfg.logger()}
}

var jobColumnList = []string{
	"id", "name", "queue_name", "execution_count", "failures_count", "retries_count",
	"avg_duration", "tags", "created_at", "updated_at",
}

var jobColumns = strings.Join(jobColumnList, ", ")

func scanJob(row scanner) (*model.Job, error) {
	var j model.Job
	if err := row.Scan(
		&j.ID, &j.Name, &j.QueueName, &j.ExecutionCount, &j.FailuresCount, &j.RetriesCount,
		&j.AvgDuration, &j.Tags, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &j, nil
}

// FindOrCreate returns the job named name, inserting it on first sight. The queue name follows
// the most recent run.
func (r *JobRepo) FindOrCreate(ctx context.Context, name, queue string) (*model.Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.ValidationField("name", "job name is required")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = "default"
	}

	now := nowUTC(r.timeProvider)
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO jobs (name, queue_name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (name) DO UPDATE
		SET queue_name = EXCLUDED.queue_name,
		    updated_at = CASE WHEN jobs.queue_name = EXCLUDED.queue_name THEN jobs.updated_at ELSE EXCLUDED.updated_at END
		RETURNING `+jobColumns, name, queue, now)
	job, err := scanJob(row)
	if err != nil {
		return nil, wrapErr("find or create job", err, nil)
	}
	return job, nil
}

// GetByID retrieves a job by ID.
func (r *JobRepo) GetByID(ctx context.Context, id int64) (*model.Job, error) {
	job, err := scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get job", err, ErrJobNotFound)
	}
	return job, nil
}

// List returns jobs filtered by queue and tag, sorted by an allowlisted column.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	sortBy := database.SortColumn(opts.SortBy, model.JobSortFields, "name")
	qopts := []database.ListQueryOption{
		database.WithColumns(jobColumnList...),
		database.WithOrderBy(database.SortDirection(opts.SortOrder, "ASC"), sortBy, "id"),
		database.WithLimit(limit),
		database.WithOffset(max(opts.Offset, 0)),
	}
	if opts.Queue != nil && *opts.Queue != "" {
		qopts = append(qopts, database.WithCondition(database.WhereCond("queue_name", database.Equal, *opts.Queue)))
	}
	if opts.Tag != nil && *opts.Tag != "" {
		qopts = append(qopts, database.WithCondition(
			database.WhereRawCond("tags @> jsonb_build_array($1::text)", model.NormalizeTag(*opts.Tag)),
		))
	}

	query, args := database.BuildListQuery(database.NewListQueryOptions("jobs", qopts...))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list jobs", err, nil)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, wrapErr("scan job", scanErr, nil)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list jobs", err, nil)
	}
	return out, nil
}

// SetTags replaces a job's tags.
func (r *JobRepo) SetTags(ctx context.Context, id int64, tags model.Tags) (*model.Job, error) {
	if tags == nil {
		tags = model.Tags{}
	}
	row := r.DB.QueryRowContext(ctx, `
		UPDATE jobs SET tags = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+jobColumns, id, tags, nowUTC(r.timeProvider))
	job, err := scanJob(row)
	if err != nil {
		return nil, wrapErr("set job tags", err, ErrJobNotFound)
	}
	return job, nil
}

// CountCreated counts jobs first seen in [from, to).
func (r *JobRepo) CountCreated(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE created_at >= $1 AND created_at < $2`,
		from.UTC(), to.UTC(),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", apperrors.MapDBError(err))
	}
	return n, nil
}

// CountCreatedByDay counts jobs first seen in [from, to) grouped by UTC day.
func (r *JobRepo) CountCreatedByDay(ctx context.Context, from, to time.Time) (map[time.Time]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, COUNT(*)
		FROM jobs
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY 1`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("count jobs by day: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	out := make(map[time.Time]int64)
	for rows.Next() {
		var (
			day time.Time
			n   int64
		)
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		y, m, d := day.Date()
		out[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count jobs by day: %w", apperrors.MapDBError(err))
	}
	return out, nil
}
