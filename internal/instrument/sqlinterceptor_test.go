package instrument

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pulse/internal/domain/model"
)

// openInterceptedMock wires a sqlmock connection behind the sqlmw interceptor.
func openInterceptedMock(t *testing.T, n *Notifier) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	dsn := "pulse_" + t.Name()
	mockDB, mock, err := sqlmock.NewWithDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	driverName := "sqlmock-pulse-" + t.Name()
	RegisterDriver(driverName, mockDB.Driver(), n)

	db, err := sql.Open(driverName, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestSQLInterceptor_RecordsSpans(t *testing.T) {
	n := NewNotifier(nil)
	_, err := NewSpanSubscriber().Attach(n)
	require.NoError(t, err)

	db, mock := openInterceptedMock(t, n)
	mock.ExpectQuery(`SELECT name FROM jobs WHERE id = \$1`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ReportJob"))
	mock.ExpectExec(`UPDATE jobs SET queue_name = \$1`).
		WithArgs("default").
		WillReturnResult(sqlmock.NewResult(0, 1))

	scope := NewScope(time.Now())
	ctx := WithScope(context.Background(), scope)

	var name string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT name FROM jobs WHERE id = $1", 7).Scan(&name))
	_, err = db.ExecContext(ctx, "UPDATE jobs SET queue_name = $1", "default")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	spans := scope.Drain()
	require.Len(t, spans, 2)
	assert.Equal(t, model.OperationSQL, spans[0].Type)
	assert.Equal(t, "SELECT name FROM jobs WHERE id = ?", spans[0].NormalizedSQL)
	assert.Equal(t, Fingerprint("SELECT name FROM jobs WHERE id = ?"), spans[0].QueryFingerprint)
	assert.Equal(t, "UPDATE jobs SET queue_name = ?", spans[1].Label)
}

func TestSQLInterceptor_SkipsSuppressedAndUnscoped(t *testing.T) {
	n := NewNotifier(nil)
	var log eventLog
	_, err := n.Subscribe("sql.*", log.handle)
	require.NoError(t, err)

	db, mock := openInterceptedMock(t, n)
	mock.ExpectExec(`DELETE FROM operations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM operations`).WillReturnResult(sqlmock.NewResult(0, 0))

	scope := NewScope(time.Now())
	suppressed := Suppress(WithScope(context.Background(), scope))
	_, err = db.ExecContext(suppressed, "DELETE FROM operations")
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), "DELETE FROM operations")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Empty(t, log.names())
	assert.Zero(t, scope.Len())
}
