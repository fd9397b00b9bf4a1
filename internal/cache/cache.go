// Package cache persists bibliographic lookup results in SQLite so repeated
// checks of the same reference skip the network. Keys pair the normalized
// title with the database name, so diacritic or punctuation variants of a
// citation land on the same entry. Only settled outcomes (found, not found)
// are stored; errors and timeouts always retry.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/refcheck/refcheck/internal/match"
	"github.com/refcheck/refcheck/internal/model"
)

const (
	// DefaultPositiveTTL is how long a found record stays valid.
	DefaultPositiveTTL = 24 * time.Hour
	// DefaultNegativeTTL is how long a not-found marker stays valid. Shorter,
	// because databases index new papers continuously.
	DefaultNegativeTTL = 6 * time.Hour
)

// Options tunes the cache TTLs.
type Options struct {
	PositiveTTL time.Duration
	NegativeTTL time.Duration
}

// QueryCache is a persistent lookup cache. A nil *QueryCache is a valid
// no-op cache: every Get misses and every Put is dropped.
type QueryCache struct {
	db          *sql.DB
	positiveTTL time.Duration
	negativeTTL time.Duration
	hits        atomic.Int64
	misses      atomic.Int64
}

// Stats summarizes cache state and per-process traffic.
type Stats struct {
	Entries  int64 `json:"entries"`
	Found    int64 `json:"found"`
	NotFound int64 `json:"not_found"`
	Expired  int64 `json:"expired"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, opts Options) (*QueryCache, error) {
	if opts.PositiveTTL == 0 {
		opts.PositiveTTL = DefaultPositiveTTL
	}
	if opts.NegativeTTL == 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "cache: migrate")
	}

	return &QueryCache{
		db:          db,
		positiveTTL: opts.PositiveTTL,
		negativeTTL: opts.NegativeTTL,
	}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS query_cache (
	norm_title TEXT NOT NULL,
	db_name    TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (norm_title, db_name)
);

CREATE INDEX IF NOT EXISTS idx_query_cache_expires_at ON query_cache(expires_at);
`

func (c *QueryCache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached result for (title, db) or nil on a miss. Expired
// entries are removed on the way out. Hits are marked FromCache.
func (c *QueryCache) Get(ctx context.Context, title, dbName string) (*model.DbResult, error) {
	if c == nil {
		return nil, nil
	}

	key := match.NormalizeTitle(title)
	if key == "" {
		c.misses.Add(1)
		return nil, nil
	}

	var resultJSON string
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT result, expires_at FROM query_cache WHERE norm_title = ? AND db_name = ?`,
		key, dbName,
	).Scan(&resultJSON, &expiresAt)
	if err == sql.ErrNoRows {
		c.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: get")
	}

	if expiresAt <= time.Now().Unix() {
		_, _ = c.db.ExecContext(ctx,
			`DELETE FROM query_cache WHERE norm_title = ? AND db_name = ?`, key, dbName)
		c.misses.Add(1)
		return nil, nil
	}

	var res model.DbResult
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return nil, eris.Wrap(err, "cache: unmarshal result")
	}
	res.FromCache = true
	c.hits.Add(1)
	return &res, nil
}

// Put stores a settled result. Anything other than found/not-found is
// silently dropped so failures never mask a later success.
func (c *QueryCache) Put(ctx context.Context, title, dbName string, res model.DbResult) error {
	if c == nil {
		return nil
	}
	if res.Status != model.DbFound && res.Status != model.DbNotFound {
		return nil
	}

	key := match.NormalizeTitle(title)
	if key == "" {
		return nil
	}

	ttl := c.positiveTTL
	if res.Status == model.DbNotFound {
		ttl = c.negativeTTL
	}

	res.FromCache = false
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "cache: marshal result")
	}

	now := time.Now()
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO query_cache (norm_title, db_name, status, result, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key, dbName, string(res.Status), string(resultJSON), now.Unix(), now.Add(ttl).Unix(),
	)
	return eris.Wrap(err, "cache: put")
}

// Purge deletes expired entries and returns how many went away.
func (c *QueryCache) Purge(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, nil
	}
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM query_cache WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, eris.Wrap(err, "cache: purge")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "cache: rows affected")
}

// Stats reports entry counts and the process hit/miss counters.
func (c *QueryCache) Stats(ctx context.Context) (Stats, error) {
	if c == nil {
		return Stats{}, nil
	}

	var s Stats
	now := time.Now().Unix()
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM query_cache`,
		string(model.DbFound), string(model.DbNotFound), now,
	).Scan(&s.Entries, &s.Found, &s.NotFound, &s.Expired)
	if err != nil {
		return Stats{}, eris.Wrap(err, "cache: stats")
	}

	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	return s, nil
}

// Hits returns the process-lifetime hit count.
func (c *QueryCache) Hits() int64 {
	if c == nil {
		return 0
	}
	return c.hits.Load()
}

// Misses returns the process-lifetime miss count.
func (c *QueryCache) Misses() int64 {
	if c == nil {
		return 0
	}
	return c.misses.Load()
}
