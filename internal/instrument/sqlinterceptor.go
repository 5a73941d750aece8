package instrument

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ngrok/sqlmw"
)

// PgxDriverName is the database/sql driver name for the instrumented pgx driver.
const PgxDriverName = "pgx-pulse"

// SQLInterceptor publishes a "sql.query" event for every statement executed through the
// wrapped driver. Statements run under a suppressed context pass straight through.
type SQLInterceptor struct {
	sqlmw.NullInterceptor

	notifier *Notifier
}

// NewSQLInterceptor creates an interceptor publishing to n.
func NewSQLInterceptor(n *Notifier) *SQLInterceptor {
	return &SQLInterceptor{notifier: n}
}

func (in *SQLInterceptor) ConnExecContext(ctx context.Context, conn driver.ExecerContext, query string, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	res, err := conn.ExecContext(ctx, query, args)
	in.publish(ctx, query, start)
	return res, err
}

func (in *SQLInterceptor) ConnQueryContext(ctx context.Context, conn driver.QueryerContext, query string, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	rows, err := conn.QueryContext(ctx, query, args)
	in.publish(ctx, query, start)
	return rows, err
}

func (in *SQLInterceptor) StmtExecContext(ctx context.Context, stmt driver.StmtExecContext, query string, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	res, err := stmt.ExecContext(ctx, args)
	in.publish(ctx, query, start)
	return res, err
}

func (in *SQLInterceptor) StmtQueryContext(ctx context.Context, stmt driver.StmtQueryContext, query string, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	rows, err := stmt.QueryContext(ctx, args)
	in.publish(ctx, query, start)
	return rows, err
}

func (in *SQLInterceptor) publish(ctx context.Context, query string, start time.Time) {
	if in.notifier == nil || Suppressed(ctx) || ScopeFrom(ctx) == nil {
		return
	}
	normalized := NormalizeSQL(query)
	in.notifier.Publish(ctx, Event{
		Name:  "sql.query",
		Start: start,
		End:   time.Now(),
		Payload: SQLPayload{
			Statement:     query,
			NormalizedSQL: normalized,
			Fingerprint:   Fingerprint(normalized),
		},
	})
}

var registerMu sync.Mutex

// RegisterDriver registers base wrapped by an SQLInterceptor under name. Registering the same
// name twice is a no-op.
func RegisterDriver(name string, base driver.Driver, n *Notifier) {
	registerMu.Lock()
	defer registerMu.Unlock()
	if slices.Contains(sql.Drivers(), name) {
		return
	}
	sql.Register(name, sqlmw.Driver(base, NewSQLInterceptor(n)))
}

// RegisterPgxDriver registers the pgx stdlib driver as PgxDriverName and returns the name.
func RegisterPgxDriver(n *Notifier) string {
	RegisterDriver(PgxDriverName, stdlib.GetDefaultDriver(), n)
	return PgxDriverName
}
