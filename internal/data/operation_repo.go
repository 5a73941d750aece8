package data

import (
	"context"
	"database/sql"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

var (
	_ core.OperationRepository = (*OperationRepo)(nil)
	_ core.QueryRepository     = (*QueryRepo)(nil)
)

// OperationRepo persists spans.
type OperationRepo struct {
	DB *sql.DB
}

// NewOperationRepo creates a new OperationRepo.
func NewOperationRepo(db *sql.DB) *OperationRepo {
	return &OperationRepo{DB: db}
}

// Insert validates and stores op, setting op.ID. An operation must belong to exactly one of a
// request or a job run; the operations_single_owner constraint enforces the same rule.
func (r *OperationRepo) Insert(ctx context.Context, op *model.Operation) error {
	if op == nil {
		return apperrors.Validationf("operation is required")
	}
	if err := op.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid operation")
	}
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO operations (request_id, job_run_id, query_id, operation_type, label, duration, start_offset, occurred_at, code_location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		op.RequestID, op.JobRunID, op.QueryID, op.Type, op.Label, op.Duration, op.StartOffset,
		op.OccurredAt.UTC(), op.CodeLocation,
	).Scan(&op.ID)
	return wrapErr("insert operation", err, nil)
}

// QueryRepo stores normalized SQL statements by fingerprint.
type QueryRepo struct {
	DB *sql.DB
}

// NewQueryRepo creates a new QueryRepo.
func NewQueryRepo(db *sql.DB) *QueryRepo {
	return &QueryRepo{DB: db}
}

// FindOrCreate returns the query with fingerprint, inserting it on first sight.
func (r *QueryRepo) FindOrCreate(ctx context.Context, fingerprint, normalizedSQL string) (*model.Query, error) {
	if fingerprint == "" {
		return nil, apperrors.ValidationField("fingerprint", "query fingerprint is required")
	}
	var q model.Query
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO queries (fingerprint, normalized_sql)
		VALUES ($1, $2)
		ON CONFLICT (fingerprint) DO UPDATE SET fingerprint = EXCLUDED.fingerprint
		RETURNING id, fingerprint, normalized_sql, created_at`,
		fingerprint, normalizedSQL,
	).Scan(&q.ID, &q.Fingerprint, &q.NormalizedSQL, &q.CreatedAt)
	if err != nil {
		return nil, wrapErr("find or create query", err, nil)
	}
	return &q, nil
}
