package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sprawl-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	district   TEXT NOT NULL,
	request    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	outcome    TEXT NOT NULL DEFAULT '',
	result     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_district ON runs(district COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal request")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, district, request, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, req.District, string(reqJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Request:   req,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, outcome = ?, error = '', updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), string(model.OutcomeDone), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, outcome model.Outcome, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, outcome = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), string(outcome), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

const sqliteRunColumns = `id, request, status, outcome, result, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.District != "" {
		query += ` AND district = ? COLLATE NOCASE`
		args = append(args, filter.District)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, t.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete runs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var reqJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &reqJSON, &r.Status, &r.Outcome, &resultJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(reqJSON), &r.Request); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal request")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
