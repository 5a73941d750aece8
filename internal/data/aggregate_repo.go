package data

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/data/pgxutil"
	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

var _ core.AggregateRepository = (*AggregateRepo)(nil)

// AggregateRepo maintains running totals on jobs and routes.
type AggregateRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
}

// NewAggregateRepo creates a new AggregateRepo.
func NewAggregateRepo(db *sql.DB, cfg RepoConfig) *AggregateRepo {
	return &AggregateRepo{DB: db, timeProvider: cfg.clock()}
}

type aggregateStatements struct {
	lock       string
	update     string
	hasRetries bool
}

var aggregateSQL = map[core.ParentKind]aggregateStatements{
	core.ParentJob: {
		lock: `SELECT avg_duration, execution_count FROM jobs WHERE id = $1 FOR UPDATE`,
		update: `UPDATE jobs
			SET avg_duration = $2, execution_count = execution_count + 1,
			    failures_count = failures_count + $3, retries_count = retries_count + $5, updated_at = $4
			WHERE id = $1`,
		hasRetries: true,
	},
	core.ParentRoute: {
		lock: `SELECT avg_duration, execution_count FROM routes WHERE id = $1 FOR UPDATE`,
		update: `UPDATE routes
			SET avg_duration = $2, execution_count = execution_count + 1,
			    failures_count = failures_count + $3, updated_at = $4
			WHERE id = $1`,
	},
}

// Accumulate folds one terminal duration into the parent's running average and counters.
// The parent row is locked for the read-modify-write so concurrent completions linearize.
func (r *AggregateRepo) Accumulate(ctx context.Context, p core.AccumulateParams) error {
	stmts, ok := aggregateSQL[p.Kind]
	if !ok {
		return apperrors.Validationf("unknown aggregate parent kind %q", p.Kind)
	}
	if p.Duration < 0 || math.IsNaN(p.Duration) || math.IsInf(p.Duration, 0) {
		return apperrors.Validationf("invalid duration %v", p.Duration)
	}

	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var (
				avg   float64
				count int64
			)
			if err := tx.QueryRowContext(ctx, stmts.lock, p.ParentID).Scan(&avg, &count); err != nil {
				return wrapErr(fmt.Sprintf("lock %s %d", p.Kind, p.ParentID), err, ErrParentNotFound)
			}

			args := []any{p.ParentID, model.NextAverage(avg, count, p.Duration), boolToInt(p.Failure), nowUTC(r.timeProvider)}
			if stmts.hasRetries {
				args = append(args, boolToInt(p.Retried))
			}
			if _, err := tx.ExecContext(ctx, stmts.update, args...); err != nil {
				return wrapErr(fmt.Sprintf("update %s %d", p.Kind, p.ParentID), err, nil)
			}
			return nil
		},
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
