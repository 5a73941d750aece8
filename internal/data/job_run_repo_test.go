package data

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

func jobRunRows() *sqlmock.Rows {
	cols := strings.Split(strings.Join(strings.Fields(jobRunColumns), ""), ",")
	return sqlmock.NewRows(cols)
}

func TestJobRunRepo_Create(t *testing.T) {
	t.Run("inserts enqueued run", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewJobRunRepo(db, testRepoConfig())
		enqueued := testNow.Add(-2 * time.Second)
		args := `{"id":1}`

		mock.ExpectQuery(`INSERT INTO job_runs`).
			WithArgs(int64(4), "run-1", model.RunStatusEnqueued, testNow, enqueued, 1, "jobqueue", args, testNow).
			WillReturnRows(jobRunRows().AddRow(
				11, 4, "run-1", "enqueued", testNow, enqueued, nil, 1, "jobqueue", nil, nil, args, []byte(`[]`), testNow, testNow,
			))

		run, err := repo.Create(context.Background(), &model.CreateJobRunRequest{
			JobID: 4, RunID: "run-1", Status: model.RunStatusEnqueued, OccurredAt: testNow,
			EnqueuedAt: &enqueued, Attempts: 1, Adapter: "jobqueue", Arguments: &args,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(11), run.ID)
		assert.Equal(t, model.RunStatusEnqueued, run.Status)
		assert.Nil(t, run.Duration)
	})

	t.Run("rejects terminal initial status", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewJobRunRepo(db, testRepoConfig())

		_, err := repo.Create(context.Background(), &model.CreateJobRunRequest{
			JobID: 4, RunID: "run-1", Status: model.RunStatusSuccess, OccurredAt: testNow,
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestJobRunRepo_Complete(t *testing.T) {
	t.Run("transitions a running run", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewJobRunRepo(db, testRepoConfig())
		class, msg := "*errors.errorString", "boom"

		mock.ExpectQuery(`UPDATE job_runs .* WHERE id = \$1 AND status IN \('enqueued', 'running'\)`).
			WithArgs(int64(11), model.RunStatusFailed, 123.46, class, msg, testNow).
			WillReturnRows(jobRunRows().AddRow(
				11, 4, "run-1", "failed", testNow, nil, 123.46, 0, "inline", class, msg, nil, []byte(`[]`), testNow, testNow,
			))

		run, changed, err := repo.Complete(context.Background(), 11, model.Completion{
			Status: model.RunStatusFailed, Duration: 123.456, ErrorClass: &class, ErrorMessage: &msg,
		})
		require.NoError(t, err)
		assert.True(t, changed)
		require.NotNil(t, run.Duration)
		assert.InDelta(t, 123.46, *run.Duration, 1e-9)
	})

	t.Run("already terminal run is not changed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewJobRunRepo(db, testRepoConfig())

		mock.ExpectQuery(`UPDATE job_runs`).WillReturnRows(jobRunRows())

		run, changed, err := repo.Complete(context.Background(), 11, model.Completion{Status: model.RunStatusSuccess, Duration: 5})
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Nil(t, run)
	})

	t.Run("non-terminal completion is rejected", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewJobRunRepo(db, testRepoConfig())

		_, _, err := repo.Complete(context.Background(), 11, model.Completion{Status: model.RunStatusRunning})
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrNotTerminal)
	})
}

func TestJobRunRepo_GetByRunID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRunRepo(db, testRepoConfig())

	mock.ExpectQuery(`FROM job_runs WHERE run_id = \$1`).WithArgs("missing").WillReturnRows(jobRunRows())

	_, err := repo.GetByRunID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobRunNotFound)
}

func TestRequestRepo_CreateAndComplete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRequestRepo(db, testRepoConfig())
	cols := strings.Split(strings.Join(strings.Fields(requestColumns), ""), ",")

	mock.ExpectQuery(`INSERT INTO requests`).
		WithArgs(int64(2), "req-1", model.RunStatusRunning, "GET /reports", testNow, testNow).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			21, 2, "req-1", "running", nil, false, "GET /reports", testNow, nil, nil, nil, []byte(`[]`), testNow, testNow,
		))

	rq, err := repo.Create(context.Background(), &model.CreateRequestRequest{
		RouteID: 2, RequestID: "req-1", ControllerAction: "GET /reports", OccurredAt: testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, rq.Status)

	code := 503
	mock.ExpectQuery(`UPDATE requests .* WHERE id = \$1 AND status IN`).
		WithArgs(int64(21), model.RunStatusFailed, 40.0, code, true, nil, nil, testNow).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			21, 2, "req-1", "failed", code, true, "GET /reports", testNow, 40.0, nil, nil, []byte(`[]`), testNow, testNow,
		))

	done, changed, err := repo.Complete(context.Background(), 21, model.Completion{
		Status: model.RunStatusFailed, Duration: 40, HTTPStatus: &code,
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, done.IsError)
	require.NotNil(t, done.HTTPStatus)
	assert.Equal(t, 503, *done.HTTPStatus)
}

func TestRouteRepo_FindOrCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRouteRepo(db, testRepoConfig())
	cols := strings.Split(strings.Join(strings.Fields(routeColumns), ""), ",")

	mock.ExpectQuery(`INSERT INTO routes .* ON CONFLICT \(method, path\)`).
		WithArgs("POST", "/api/reports/{id}", testNow).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(5, "POST", "/api/reports/{id}", 0, 0, 0.0, []byte(`[]`), testNow, testNow))

	rt, err := repo.FindOrCreate(context.Background(), "post", "/api/reports/{id}")
	require.NoError(t, err)
	assert.Equal(t, "POST /api/reports/{id}", rt.Name())

	_, err = repo.FindOrCreate(context.Background(), "GET", " ")
	assert.True(t, apperrors.IsValidation(err))
}
