package scheduler

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL
	_ "modernc.org/sqlite"
)

// RunRecord is one pipeline pass: what triggered it, what it wrote, and
// whether a commit was produced.
type RunRecord struct {
	ID         string
	Trigger    string // "cron" or "manual"
	Status     string // "success" or "error"
	Error      string
	Files      []string
	CommitHash string
	StartedAt  int64
	FinishedAt int64
}

type Store struct {
	db     *sql.DB
	driver string
}

func OpenStore(driver, path string) (*Store, error) {
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		db.Exec(`PRAGMA foreign_keys = ON`)
	}
	if driver == "postgres" {
		db.SetConnMaxIdleTime(15 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(100)
		db.SetConnMaxLifetime(1 * time.Hour)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db, driver: driver}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS jpxsync_runs (
        id TEXT PRIMARY KEY,
        trigger_source TEXT NOT NULL,
        status TEXT NOT NULL,
        error TEXT,
        files TEXT,
        commit_hash TEXT,
        started_at INTEGER,
        finished_at INTEGER
    )`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_jpxsync_runs_started ON jpxsync_runs(started_at)`)
	return err
}

type DBDriver string

const (
	SQLite     DBDriver = "sqlite"
	PostgreSQL DBDriver = "postgres"
)

func (s *Store) IsSQLite() bool {
	return DBDriver(s.driver) == SQLite
}

func (s *Store) IsPostgres() bool {
	return DBDriver(s.driver) == PostgreSQL
}

func (s *Store) AddRun(ctx context.Context, r RunRecord) error {
	query := `INSERT INTO jpxsync_runs
        (id, trigger_source, status, error, files, commit_hash, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if s.IsPostgres() {
		query = `INSERT INTO jpxsync_runs
        (id, trigger_source, status, error, files, commit_hash, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Trigger, r.Status, r.Error, strings.Join(r.Files, "\n"), r.CommitHash, r.StartedAt, r.FinishedAt,
	)
	return err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT id, trigger_source, status, error, files, commit_hash, started_at, finished_at
        FROM jpxsync_runs ORDER BY started_at DESC LIMIT ?`
	if s.IsPostgres() {
		query = `SELECT id, trigger_source, status, error, files, commit_hash, started_at, finished_at
        FROM jpxsync_runs ORDER BY started_at DESC LIMIT $1`
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var files string
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &r.Error, &files, &r.CommitHash, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		if files != "" {
			r.Files = strings.Split(files, "\n")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastRun returns the most recent run, or nil when none have been recorded.
func (s *Store) LastRun(ctx context.Context) (*RunRecord, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
