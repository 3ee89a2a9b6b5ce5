package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/spreadwatch/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	as_of            TEXT NOT NULL,
	status           TEXT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	stale            INTEGER NOT NULL DEFAULT 0,
	spread_bps       INTEGER NOT NULL DEFAULT 0,
	baseline_version TEXT NOT NULL DEFAULT '',
	error            TEXT NOT NULL DEFAULT '',
	started_at       DATETIME NOT NULL,
	finished_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS source_attempts (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	source      TEXT NOT NULL,
	tier        INTEGER NOT NULL,
	status      TEXT NOT NULL,
	fields      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_as_of ON runs(as_of);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record run")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, as_of, status, source, stale, spread_bps, baseline_version, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AsOf, string(run.Status), run.Source, run.Stale, run.SpreadBps,
		run.BaselineVersion, run.Error, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	for i, a := range run.Attempts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO source_attempts (run_id, position, source, tier, status, fields, error, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, a.Source, a.Tier, a.Status, joinFields(a.Fields), a.Error, a.DurationMs,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert attempt %s for run %s", a.Source, run.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit record run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts(ctx, runID)
	if err != nil {
		return nil, err
	}
	r.Attempts = attempts
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.AsOf != "" {
		query += ` AND as_of = ?`
		args = append(args, filter.AsOf)
	}
	if !filter.StartedAfter.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.StartedAfter.UTC())
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs iterate")
	}
	rows.Close() //nolint:errcheck

	if filter.IncludeAttempts {
		for i := range runs {
			attempts, err := s.attempts(ctx, runs[i].ID)
			if err != nil {
				return nil, err
			}
			runs[i].Attempts = attempts
		}
	}
	return runs, nil
}

func (s *SQLiteStore) attempts(ctx context.Context, runID string) ([]model.SourceAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, tier, status, fields, error, duration_ms
		 FROM source_attempts WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list attempts for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SourceAttempt
	for rows.Next() {
		var a model.SourceAttempt
		var fields string
		if err := rows.Scan(&a.Source, &a.Tier, &a.Status, &fields, &a.Error, &a.DurationMs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		a.Fields = splitFields(fields)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list attempts iterate")
}

// helpers

const runColumns = `id, as_of, status, source, stale, spread_bps, baseline_version, error, started_at, finished_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	err := row.Scan(&r.ID, &r.AsOf, &r.Status, &r.Source, &r.Stale, &r.SpreadBps,
		&r.BaselineVersion, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	return &r, nil
}

func joinFields(keys []model.FieldKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func splitFields(s string) []model.FieldKey {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]model.FieldKey, len(parts))
	for i, p := range parts {
		out[i] = model.FieldKey(p)
	}
	return out
}
