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

var _ core.RequestRepository = (*RequestRepo)(nil)

const requestColumns = `id, route_id, request_id, status, http_status, is_error, controller_action, occurred_at,
	duration, error_class, error_message, tags, created_at, updated_at`

// RequestRepo provides database operations for HTTP requests.
type RequestRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
	logger       *slog.Logger
}

// NewRequestRepo creates a new RequestRepo.
func NewRequestRepo(db *sql.DB, cfg RepoConfig) *RequestRepo {
	return &RequestRepo{DB: db, timeProvider: cfg.clock(), logger: cfg.logger()}
}

func scanRequest(row scanner) (*model.Request, error) {
	var rq model.Request
	if err := row.Scan(
		&rq.ID, &rq.RouteID, &rq.RequestID, &rq.Status, &rq.HTTPStatus, &rq.IsError, &rq.ControllerAction,
		&rq.OccurredAt, &rq.Duration, &rq.ErrorClass, &rq.ErrorMessage, &rq.Tags, &rq.CreatedAt, &rq.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rq, nil
}

// Create inserts a request in the running status.
func (r *RequestRepo) Create(ctx context.Context, req *model.CreateRequestRequest) (*model.Request, error) {
	if req == nil {
		return nil, apperrors.Validationf("create request request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request")
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO requests (route_id, request_id, status, controller_action, occurred_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+requestColumns,
		req.RouteID, strings.TrimSpace(req.RequestID), model.RunStatusRunning, req.ControllerAction,
		req.OccurredAt.UTC(), nowUTC(r.timeProvider),
	)
	rq, err := scanRequest(row)
	if err != nil {
		return nil, wrapErr("create request", err, nil)
	}
	return rq, nil
}

// Complete moves a running request to c.Status, recording the response code.
// An already-terminal request is left untouched and reported with changed=false.
func (r *RequestRepo) Complete(ctx context.Context, id int64, c model.Completion) (*model.Request, bool, error) {
	if err := c.Validate(); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid completion")
	}

	row := r.DB.QueryRowContext(ctx, `
		UPDATE requests
		SET status = $2, duration = $3, http_status = $4, is_error = $5,
		    error_class = $6, error_message = $7, updated_at = $8
		WHERE id = $1 AND `+nonTerminalPredicate+`
		RETURNING `+requestColumns,
		id, c.Status, model.RoundTo(c.Duration, 2), c.HTTPStatus, c.Status.IsFailure(),
		c.ErrorClass, c.ErrorMessage, nowUTC(r.timeProvider),
	)
	rq, err := scanRequest(row)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, wrapErr("complete request", err, nil)
	}
	return rq, true, nil
}
