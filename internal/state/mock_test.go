package state

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgrid/pkg/core"
)

// mockStore wraps a sqlmock connection in a Store so driver failures
// and the issued SQL can be asserted without a real database.
func mockStore(t *testing.T, dialect string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: db, dialect: dialect}, mock
}

func TestStore_DriverErrors(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		run       func(ctx context.Context, s *Store) error
		errMsg    string
		notFound  bool
	}{
		{
			name: "create workspace exec error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO workspaces").WillReturnError(assert.AnError)
			},
			run: func(ctx context.Context, s *Store) error {
				_, err := s.CreateWorkspace(ctx, "demo")
				return err
			},
			errMsg: "failed to create workspace",
		},
		{
			name: "get workspace query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, name").WillReturnError(assert.AnError)
			},
			run: func(ctx context.Context, s *Store) error {
				_, err := s.GetWorkspace(ctx, "ws1")
				return err
			},
			errMsg: "failed to get workspace",
		},
		{
			name: "get workspace no rows",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, name").WillReturnError(sql.ErrNoRows)
			},
			run: func(ctx context.Context, s *Store) error {
				_, err := s.GetWorkspace(ctx, "ws1")
				return err
			},
			notFound: true,
		},
		{
			name: "list workspaces query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, name").WillReturnError(assert.AnError)
			},
			run: func(ctx context.Context, s *Store) error {
				_, err := s.ListWorkspaces(ctx)
				return err
			},
			errMsg: "failed to list workspaces",
		},
		{
			name: "delete workspace exec error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM workspaces").WillReturnError(assert.AnError)
			},
			run: func(ctx context.Context, s *Store) error {
				return s.DeleteWorkspace(ctx, "ws1")
			},
			errMsg: "failed to delete workspace",
		},
		{
			name: "delete workspace nothing deleted",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM workspaces").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			run: func(ctx context.Context, s *Store) error {
				return s.DeleteWorkspace(ctx, "ws1")
			},
			notFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := mockStore(t, dialectSQLite)
			tt.setupMock(mock)

			err := tt.run(context.Background(), s)
			require.Error(t, err)
			if tt.notFound {
				assert.True(t, errors.Is(err, core.ErrNotFound))
			} else {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// A postgres-dialect store must issue numbered placeholders; sqlmock's
// regexp matching fails the test if the literal ? survives.
func TestStore_PostgresPlaceholders(t *testing.T) {
	s, mock := mockStore(t, dialectPostgres)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
		AddRow("ws1", "demo", now, now)
	mock.ExpectQuery(`SELECT id, name, created_at, updated_at FROM workspaces WHERE id = \$1`).
		WithArgs("ws1").
		WillReturnRows(rows)

	ws, err := s.GetWorkspace(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Equal(t, "demo", ws.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
