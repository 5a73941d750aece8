package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/data/database"
	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

var _ core.SummaryRepository = (*SummaryRepo)(nil)

var summaryColumnList = []string{
	"id", "summarizable_type", "summarizable_id", "period_type", "period_start", "period_end",
	"count", "avg_duration", "min_duration", "max_duration", "p50_duration", "p95_duration", "p99_duration",
	"total_duration", "stddev_duration", "error_count", "success_count",
	"status_2xx", "status_3xx", "status_4xx", "status_5xx", "created_at", "updated_at",
}

// SummaryRepo provides database operations for summary rollups.
type SummaryRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
}

// NewSummaryRepo creates a new SummaryRepo.
func NewSummaryRepo(db *sql.DB, cfg RepoConfig) *SummaryRepo {
	return &SummaryRepo{DB: db, timeProvider: cfg.clock()}
}

func scanSummary(row scanner) (*model.Summary, error) {
	var s model.Summary
	if err := row.Scan(
		&s.ID, &s.SummarizableType, &s.SummarizableID, &s.PeriodType, &s.PeriodStart, &s.PeriodEnd,
		&s.Count, &s.AvgDuration, &s.MinDuration, &s.MaxDuration, &s.P50Duration, &s.P95Duration, &s.P99Duration,
		&s.TotalDuration, &s.StddevDuration, &s.ErrorCount, &s.SuccessCount,
		&s.Status2xx, &s.Status3xx, &s.Status4xx, &s.Status5xx, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts s or overwrites every statistic of the existing row with the same key.
// s.ID, s.CreatedAt and s.UpdatedAt are set from the stored row.
func (r *SummaryRepo) Upsert(ctx context.Context, s *model.Summary) error {
	if s == nil {
		return apperrors.Validationf("summary is required")
	}
	if !s.SummarizableType.Valid() || !s.PeriodType.Valid() {
		return apperrors.Validationf("invalid summary key %s/%s", s.SummarizableType, s.PeriodType)
	}

	now := nowUTC(r.timeProvider)
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO summaries (
			summarizable_type, summarizable_id, period_type, period_start, period_end,
			count, avg_duration, min_duration, max_duration, p50_duration, p95_duration, p99_duration,
			total_duration, stddev_duration, error_count, success_count,
			status_2xx, status_3xx, status_4xx, status_5xx, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $21)
		ON CONFLICT (summarizable_type, summarizable_id, period_type, period_start) DO UPDATE SET
			period_end = EXCLUDED.period_end,
			count = EXCLUDED.count,
			avg_duration = EXCLUDED.avg_duration,
			min_duration = EXCLUDED.min_duration,
			max_duration = EXCLUDED.max_duration,
			p50_duration = EXCLUDED.p50_duration,
			p95_duration = EXCLUDED.p95_duration,
			p99_duration = EXCLUDED.p99_duration,
			total_duration = EXCLUDED.total_duration,
			stddev_duration = EXCLUDED.stddev_duration,
			error_count = EXCLUDED.error_count,
			success_count = EXCLUDED.success_count,
			status_2xx = EXCLUDED.status_2xx,
			status_3xx = EXCLUDED.status_3xx,
			status_4xx = EXCLUDED.status_4xx,
			status_5xx = EXCLUDED.status_5xx,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`,
		s.SummarizableType, s.SummarizableID, s.PeriodType, s.PeriodStart.UTC(), s.PeriodEnd.UTC(),
		s.Count, s.AvgDuration, s.MinDuration, s.MaxDuration, s.P50Duration, s.P95Duration, s.P99Duration,
		s.TotalDuration, s.StddevDuration, s.ErrorCount, s.SuccessCount,
		s.Status2xx, s.Status3xx, s.Status4xx, s.Status5xx, now,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return wrapErr("upsert summary", err, nil)
	}
	return nil
}

// List returns summaries matching filter ordered by period start.
func (r *SummaryRepo) List(ctx context.Context, filter model.SummaryFilter) ([]*model.Summary, error) {
	qopts := []database.ListQueryOption{
		database.WithColumns(summaryColumnList...),
		database.WithOrderBy("ASC", "period_start", "summarizable_id"),
	}
	if filter.Type != "" {
		qopts = append(qopts, database.WithCondition(database.WhereCond("summarizable_type", database.Equal, filter.Type)))
	}
	if filter.EntityID != nil {
		qopts = append(qopts, database.WithCondition(database.WhereCond("summarizable_id", database.Equal, *filter.EntityID)))
	}
	if filter.PeriodType != "" {
		qopts = append(qopts, database.WithCondition(database.WhereCond("period_type", database.Equal, filter.PeriodType)))
	}
	if !filter.From.IsZero() {
		qopts = append(qopts, database.WithCondition(database.WhereCond("period_start", database.GreaterThanOrEqual, filter.From.UTC())))
	}
	if !filter.To.IsZero() {
		qopts = append(qopts, database.WithCondition(database.WhereCond("period_start", database.LessThan, filter.To.UTC())))
	}

	query, args := database.BuildListQuery(database.NewListQueryOptions("summaries", qopts...))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list summaries", err, nil)
	}
	defer rows.Close()

	var out []*model.Summary
	for rows.Next() {
		s, scanErr := scanSummary(rows)
		if scanErr != nil {
			return nil, wrapErr("scan summary", scanErr, nil)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list summaries", err, nil)
	}
	return out, nil
}

// terminalStatusList renders model.TerminalStatuses as a SQL IN list.
var terminalStatusList = "'" + strings.Join(model.StatusStrings(model.TerminalStatuses), "', '") + "'"

var completedRunsSQL = map[model.SummarizableType]string{
	model.SummarizableJob: `
		SELECT job_id, occurred_at, duration, status, NULL::integer
		FROM job_runs
		WHERE occurred_at >= $1 AND occurred_at < $2 AND duration IS NOT NULL
		  AND status IN (` + terminalStatusList + `)
		ORDER BY job_id, occurred_at`,
	model.SummarizableRoute: `
		SELECT route_id, occurred_at, duration, status, http_status
		FROM requests
		WHERE occurred_at >= $1 AND occurred_at < $2 AND duration IS NOT NULL
		  AND status IN (` + terminalStatusList + `)
		ORDER BY route_id, occurred_at`,
}

// CompletedRuns loads terminal units of work of typ that occurred in [from, to).
func (r *SummaryRepo) CompletedRuns(ctx context.Context, typ model.SummarizableType, from, to time.Time) ([]model.CompletedRun, error) {
	query, ok := completedRunsSQL[typ]
	if !ok {
		return nil, apperrors.Validationf("unknown summarizable type %q", typ)
	}
	rows, err := r.DB.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("load completed %s runs", typ), err, nil)
	}
	defer rows.Close()

	var out []model.CompletedRun
	for rows.Next() {
		var c model.CompletedRun
		if err := rows.Scan(&c.EntityID, &c.OccurredAt, &c.Duration, &c.Status, &c.HTTPStatus); err != nil {
			return nil, wrapErr("scan completed run", err, nil)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(fmt.Sprintf("load completed %s runs", typ), err, nil)
	}
	return out, nil
}
