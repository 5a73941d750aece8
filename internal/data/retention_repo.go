package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/data/pgxutil"
)

// Advisory lock namespace for retention operations.
// Two-arg pg_try_advisory_xact_lock(major, minor); major 7250 is reserved for pulse retention.
const (
	advisoryLockRetentionMajor = 7250
	advisoryLockRetentionAge   = 1 // minor key for DeleteOlderThan
	advisoryLockRetentionTrim  = 2 // minor key for TrimToLimit
)

var _ core.RetentionRepository = (*RetentionRepo)(nil)

// RetentionRepo deletes expired telemetry in bounded batches.
type RetentionRepo struct {
	DB *sql.DB
}

// NewRetentionRepo creates a new RetentionRepo.
func NewRetentionRepo(db *sql.DB) *RetentionRepo {
	return &RetentionRepo{DB: db}
}

// retentionTableName returns the SQL identifier for t. Only whitelisted tables are accepted.
func retentionTableName(t core.RetentionTable) (string, error) {
	switch t {
	case core.RetentionJobRuns, core.RetentionRequests, core.RetentionOperations:
		return string(t), nil
	default:
		return "", fmt.Errorf("invalid retention table: %q", t)
	}
}

// DeleteOlderThan deletes up to BatchSize rows of Table that occurred before Cutoff, oldest first.
// Uses advisory locks so concurrent retention passes do not compete for the same rows.
func (r *RetentionRepo) DeleteOlderThan(ctx context.Context, params core.DeleteOlderThanParams) (int64, error) {
	table, err := retentionTableName(params.Table)
	if err != nil {
		return 0, err
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.Cutoff.IsZero() {
		return 0, errors.New("cutoff is required")
	}

	query := `
		DELETE FROM ` + table + `
		WHERE id IN (
			SELECT id FROM ` + table + `
			WHERE occurred_at < $1
			ORDER BY occurred_at
			LIMIT $2
		)`
	return r.lockedDelete(ctx, advisoryLockRetentionAge, "delete old "+table, query, params.Cutoff.UTC(), params.BatchSize)
}

// TrimToLimit deletes the oldest rows of Table while it holds more than MaxRows, at most
// BatchSize per call.
func (r *RetentionRepo) TrimToLimit(ctx context.Context, params core.TrimToLimitParams) (int64, error) {
	table, err := retentionTableName(params.Table)
	if err != nil {
		return 0, err
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxRows < 0 {
		return 0, errors.New("max rows must not be negative")
	}

	query := `
		DELETE FROM ` + table + `
		WHERE id IN (
			SELECT id FROM ` + table + `
			ORDER BY occurred_at, id
			LIMIT LEAST($2, GREATEST((SELECT count(*) FROM ` + table + `) - $1, 0))
		)`
	return r.lockedDelete(ctx, advisoryLockRetentionTrim, "trim "+table, query, params.MaxRows, params.BatchSize)
}

func (r *RetentionRepo) lockedDelete(ctx context.Context, minor int, op, query string, args ...any) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockRetentionMajor, minor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
