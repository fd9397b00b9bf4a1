// Package history persists completed validation runs to Postgres. The store
// is optional: callers construct one only when a DSN is configured and treat
// a nil store as history disabled.
package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/internal/report"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store saves and loads runs from the check_runs table.
type Store struct {
	pool Pool
}

// Open connects a pool and verifies the connection. History writes one row
// per run, so the pool stays small.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "history: parse dsn")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "history: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "history: ping")
	}

	return &Store{pool: pool}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS check_runs (
	id         UUID PRIMARY KEY,
	source     TEXT NOT NULL,
	stats      JSONB NOT NULL,
	results    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_check_runs_created_at ON check_runs(created_at DESC);
`

// Migrate creates the check_runs table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "history: migrate")
}

// Ping verifies the pool is alive.
func (s *Store) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "history: ping")
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveRun inserts one completed run.
func (s *Store) SaveRun(ctx context.Context, run *report.Run) error {
	if run == nil {
		return eris.New("history: nil run")
	}

	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return eris.Wrap(err, "history: marshal stats")
	}
	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return eris.Wrap(err, "history: marshal results")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO check_runs (id, source, stats, results, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Source, statsJSON, resultsJSON, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "history: insert run %s", run.ID)
	}
	return nil
}

// RunSummary is a ListRuns row without the results payload.
type RunSummary struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	Stats     model.CheckStats `json:"stats"`
	CreatedAt time.Time        `json:"created_at"`
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// selects the default of 50.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, source, stats, created_at FROM check_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "history: list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var statsJSON []byte

		if err := rows.Scan(&r.ID, &r.Source, &statsJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "history: scan run")
		}
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "history: unmarshal stats")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "history: list runs iterate")
}

// GetRun loads one run with its full results. The returned error unwraps to
// pgx.ErrNoRows when no run has the given id.
func (s *Store) GetRun(ctx context.Context, id string) (*report.Run, error) {
	var run report.Run
	var statsJSON, resultsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, source, stats, results, created_at FROM check_runs WHERE id = $1`,
		id,
	).Scan(&run.ID, &run.Source, &statsJSON, &resultsJSON, &run.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "history: get run %s", id)
	}

	if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
		return nil, eris.Wrap(err, "history: unmarshal stats")
	}
	if err := json.Unmarshal(resultsJSON, &run.Results); err != nil {
		return nil, eris.Wrap(err, "history: unmarshal results")
	}
	return &run, nil
}
