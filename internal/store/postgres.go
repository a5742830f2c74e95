package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sprawl-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	district   TEXT NOT NULL,
	request    JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	outcome    TEXT NOT NULL DEFAULT '',
	result     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_district ON runs(lower(district));
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal request")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, district, request, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, req.District, reqJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Request:   req,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound(runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, outcome = $3, error = '', updated_at = $4 WHERE id = $5`,
		resultJSON, string(model.RunStatusComplete), string(model.OutcomeDone), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound(runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, outcome model.Outcome, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, outcome = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(model.RunStatusFailed), string(outcome), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound(runID)
	}
	return nil
}

const postgresRunColumns = `id, request, status, outcome, result, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.District != "" {
		query += fmt.Sprintf(` AND lower(district) = lower($%d)`, argIdx)
		args = append(args, filter.District)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) DeleteRunsBefore(ctx context.Context, t time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM runs WHERE created_at < $1`, t.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete runs")
	}
	return int(tag.RowsAffected()), nil
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var reqJSON, resultJSON []byte

	if err := row.Scan(&r.ID, &reqJSON, &r.Status, &r.Outcome, &resultJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reqJSON, &r.Request); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal request")
	}
	if resultJSON != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}
