package data

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/target/pulse/internal/core"
)

var testNow = time.Date(2024, 5, 6, 10, 30, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func testRepoConfig() RepoConfig {
	return RepoConfig{TimeProvider: core.NewFixedTimeProvider(testNow)}
}

func ptr[T any](v T) *T { return &v }
