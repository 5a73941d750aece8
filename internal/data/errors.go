package data

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/target/pulse/internal/errors"
)

// Shared sentinel errors for data-layer repositories. They carry the not_found code so the
// HTTP layer can render them without importing this package.
var (
	ErrJobNotFound    = &apperrors.AppError{Code: apperrors.ErrCodeNotFound, Message: "job not found"}
	ErrJobRunNotFound = &apperrors.AppError{Code: apperrors.ErrCodeNotFound, Message: "job run not found"}
	ErrRouteNotFound  = &apperrors.AppError{Code: apperrors.ErrCodeNotFound, Message: "route not found"}
	ErrParentNotFound = &apperrors.AppError{Code: apperrors.ErrCodeNotFound, Message: "aggregate parent not found"}
)

// wrapErr prefixes op and maps database errors to AppErrors. Missing rows become notFound when
// it is non-nil.
func wrapErr(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && isNoRows(err) {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	return fmt.Errorf("%s: %w", op, apperrors.MapDBError(err))
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
