package data

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

func TestOperationRepo_Insert(t *testing.T) {
	tests := []struct {
		name    string
		op      *model.Operation
		wantErr error
	}{
		{
			name:    "nil operation",
			op:      nil,
			wantErr: nil,
		},
		{
			name:    "no owner",
			op:      &model.Operation{Type: model.OperationSQL, Label: "SELECT 1", OccurredAt: testNow},
			wantErr: model.ErrOperationOwner,
		},
		{
			name: "both owners",
			op: &model.Operation{
				RequestID: ptr(int64(1)), JobRunID: ptr(int64(2)),
				Type: model.OperationSQL, Label: "SELECT 1", OccurredAt: testNow,
			},
			wantErr: model.ErrOperationOwner,
		},
		{
			name: "unknown type",
			op: &model.Operation{
				JobRunID: ptr(int64(2)), Type: "websocket", Label: "x", OccurredAt: testNow,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _ := newMockDB(t)
			repo := NewOperationRepo(db)

			err := repo.Insert(context.Background(), tt.op)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	t.Run("inserts job run span", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOperationRepo(db)
		loc := "report.go:42"
		op := &model.Operation{
			JobRunID: ptr(int64(11)), QueryID: ptr(int64(3)), Type: model.OperationSQL,
			Label: "SELECT * FROM reports", Duration: 12.5, StartOffset: 1.25, OccurredAt: testNow, CodeLocation: &loc,
		}

		mock.ExpectQuery(`INSERT INTO operations`).
			WithArgs(nil, int64(11), int64(3), model.OperationSQL, "SELECT * FROM reports", 12.5, 1.25, testNow, loc).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))

		require.NoError(t, repo.Insert(context.Background(), op))
		assert.Equal(t, int64(77), op.ID)
	})
}

func TestQueryRepo_FindOrCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueryRepo(db)

	mock.ExpectQuery(`INSERT INTO queries .* ON CONFLICT \(fingerprint\)`).
		WithArgs("00ff00ff00ff00ff", "SELECT * FROM reports WHERE id = ?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fingerprint", "normalized_sql", "created_at"}).
			AddRow(3, "00ff00ff00ff00ff", "SELECT * FROM reports WHERE id = ?", testNow))

	q, err := repo.FindOrCreate(context.Background(), "00ff00ff00ff00ff", "SELECT * FROM reports WHERE id = ?")
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.ID)

	_, err = repo.FindOrCreate(context.Background(), "", "SELECT 1")
	assert.True(t, apperrors.IsValidation(err))
}
