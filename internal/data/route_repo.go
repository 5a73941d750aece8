package data

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

var _ core.RouteRepository = (*RouteRepo)(nil)

const routeColumns = `id, method, path, execution_count, failures_count, avg_duration, tags, created_at, updated_at`

// RouteRepo provides database operations for HTTP routes.
type RouteRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
	logger       *slog.Logger
}

// NewRouteRepo creates a new RouteRepo.
func NewRouteRepo(db *sql.DB, cfg RepoConfig) *RouteRepo {
	return &RouteRepo{DB: db, timeProvider: cfg.clock(), logger: cfg.logger()}
}

func scanRoute(row scanner) (*model.Route, error) {
	var rt model.Route
	if err := row.Scan(
		&rt.ID, &rt.Method, &rt.Path, &rt.ExecutionCount, &rt.FailuresCount, &rt.AvgDuration,
		&rt.Tags, &rt.CreatedAt, &rt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rt, nil
}

// FindOrCreate returns the route for (method, path), inserting it on first sight.
func (r *RouteRepo) FindOrCreate(ctx context.Context, method, path string) (*model.Route, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	path = strings.TrimSpace(path)
	if method == "" || path == "" {
		return nil, apperrors.Validationf("route method and path are required")
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO routes (method, path, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (method, path) DO UPDATE SET method = EXCLUDED.method
		RETURNING `+routeColumns, method, path, nowUTC(r.timeProvider))
	rt, err := scanRoute(row)
	if err != nil {
		return nil, wrapErr("find or create route", err, nil)
	}
	return rt, nil
}

// GetByID retrieves a route by ID.
func (r *RouteRepo) GetByID(ctx context.Context, id int64) (*model.Route, error) {
	rt, err := scanRoute(r.DB.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get route", err, ErrRouteNotFound)
	}
	return rt, nil
}
