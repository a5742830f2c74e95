package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sprawl-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

var runColumns = []string{"id", "request", "status", "outcome", "result", "error", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "Lahore", pgxmock.AnyArg(), "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), lahoreRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.Equal(t, "Lahore", run.Request.District)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "Lahore", pgxmock.AnyArg(), "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.CreateRun(context.Background(), lahoreRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	reqJSON, err := json.Marshal(lahoreRequest())
	require.NoError(t, err)
	resultJSON, err := json.Marshal(sampleResult())
	require.NoError(t, err)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, request, status, outcome, result, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", reqJSON, "complete", "done", resultJSON, "", now, now))

	got, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, model.OutcomeDone, got.Outcome)
	assert.Equal(t, lahoreRequest(), got.Request)
	assert.Equal(t, sampleResult(), got.Result)
	assert.Equal(t, now, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, request, status, outcome, result, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET result = \$1, status = \$2, outcome = \$3`).
		WithArgs(pgxmock.AnyArg(), "complete", "done", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteRun(context.Background(), "run-1", sampleResult()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, outcome = \$2, error = \$3`).
		WithArgs("failed", "no_imagery", "no imagery", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FailRun(context.Background(), "missing", model.OutcomeNoImagery, "no imagery")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("running", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateRunStatus(context.Background(), "run-1", model.RunStatusRunning))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	reqJSON, err := json.Marshal(model.RunRequest{District: "Karachi"})
	require.NoError(t, err)
	now := time.Now().UTC()

	mock.ExpectQuery(`AND status = \$1 AND lower\(district\) = lower\(\$2\) ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("failed", "karachi", 10, 20).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-2", reqJSON, "failed", "no_imagery", nil, "no imagery", now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Status:   model.RunStatusFailed,
		District: "karachi",
		Limit:    10,
		Offset:   20,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, model.OutcomeNoImagery, runs[0].Outcome)
	assert.Equal(t, "no imagery", runs[0].Error)
	assert.Nil(t, runs[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true ORDER BY created_at DESC LIMIT \$1$`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(runColumns))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRunsBefore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM runs WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.DeleteRunsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	assert.NoError(t, s.Close())
}
