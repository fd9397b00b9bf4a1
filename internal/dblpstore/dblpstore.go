// Package dblpstore maintains a local snapshot of the DBLP bibliography in
// SQLite so computer science references can be checked without network
// access. The snapshot is built by streaming dblp.xml into batched
// transactions and queried through an FTS index over normalized titles.
package dblpstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/refcheck/refcheck/internal/match"
)

// candidateLimit bounds how many FTS candidates are verified per query.
const candidateLimit = 5

// minScore discards containment matches where the overlap is a sliver of the
// stored title.
const minScore = 0.25

// Record is one publication from the snapshot.
type Record struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	URL     string   `json:"url,omitempty"`
	Year    int      `json:"year,omitempty"`
}

// Match is a query hit: the record plus a similarity score in (0, 1], where
// 1 means the normalized titles are identical.
type Match struct {
	Record Record
	Score  float64
}

// Info describes the state of the snapshot.
type Info struct {
	BuiltAt time.Time
	Records int64
}

// Staleness is the snapshot age, or zero when the store was never built.
func (i Info) Staleness() time.Duration {
	if i.BuiltAt.IsZero() {
		return 0
	}
	return time.Since(i.BuiltAt)
}

// Store is a handle to the snapshot database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the snapshot database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "dblpstore: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "dblpstore: exec %s", pragma)
		}
	}
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "dblpstore: migrate")
	}
	return &Store{db: db, path: path}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS pubs (
	id         INTEGER PRIMARY KEY,
	norm_title TEXT NOT NULL,
	title      TEXT NOT NULL,
	authors    TEXT NOT NULL,
	url        TEXT,
	year       INTEGER
);

CREATE INDEX IF NOT EXISTS idx_pubs_norm_title ON pubs(norm_title);

CREATE VIRTUAL TABLE IF NOT EXISTS pubs_fts USING fts5(
	norm_title,
	content='pubs',
	content_rowid='id'
);

CREATE TABLE IF NOT EXISTS _meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);
`

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Query looks a title up in the snapshot. An indexed exact lookup on the
// normalized title runs first; if that misses, FTS candidates are verified
// with the shared title-equivalence rules. Returns nil when nothing scores
// above the floor.
func (s *Store) Query(ctx context.Context, title string) (*Match, error) {
	norm := match.NormalizeTitle(title)
	if norm == "" {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT title, authors, url, year FROM pubs WHERE norm_title = ? LIMIT 1`, norm)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return &Match{Record: *rec, Score: 1.0}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.title, p.authors, p.url, p.year
		 FROM pubs_fts f JOIN pubs p ON p.id = f.rowid
		 WHERE pubs_fts MATCH ?
		 ORDER BY rank LIMIT ?`,
		ftsQuery(norm), candidateLimit)
	if err != nil {
		return nil, eris.Wrap(err, "dblpstore: fts query")
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if rec == nil || !match.TitlesMatch(title, rec.Title) {
			continue
		}
		score := containmentScore(norm, match.NormalizeTitle(rec.Title))
		if score < minScore {
			continue
		}
		return &Match{Record: *rec, Score: score}, nil
	}
	return nil, eris.Wrap(rows.Err(), "dblpstore: fts iterate")
}

// Info reads the build metadata.
func (s *Store) Info(ctx context.Context) (Info, error) {
	var info Info

	builtAt, err := s.metaValue(ctx, "built_at")
	if err != nil {
		return info, err
	}
	if builtAt != "" {
		t, err := time.Parse(time.RFC3339, builtAt)
		if err != nil {
			return info, eris.Wrap(err, "dblpstore: parse built_at")
		}
		info.BuiltAt = t
	}

	count, err := s.metaValue(ctx, "record_count")
	if err != nil {
		return info, err
	}
	if count != "" {
		n, err := strconv.ParseInt(count, 10, 64)
		if err != nil {
			return info, eris.Wrap(err, "dblpstore: parse record_count")
		}
		info.Records = n
	}
	return info, nil
}

// ETag returns the entity tag of the snapshot the store was last built from,
// or "" when none was recorded. Meta is wiped when a build starts, so a
// present tag always describes a completed build.
func (s *Store) ETag(ctx context.Context) (string, error) {
	return s.metaValue(ctx, "etag")
}

// SetETag records the entity tag of the snapshot behind the current contents.
func (s *Store) SetETag(ctx context.Context, etag string) error {
	return s.setMeta(ctx, "etag", etag)
}

func (s *Store) metaValue(ctx context.Context, key string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM _meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "dblpstore: read meta %s", key)
	}
	return v.String, nil
}

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	var authorsJSON string
	var url sql.NullString
	var year sql.NullInt64

	err := row.Scan(&rec.Title, &authorsJSON, &url, &year)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "dblpstore: scan record")
	}
	if err := json.Unmarshal([]byte(authorsJSON), &rec.Authors); err != nil {
		return nil, eris.Wrap(err, "dblpstore: unmarshal authors")
	}
	rec.URL = url.String
	rec.Year = int(year.Int64)
	return &rec, nil
}

// ftsQuery quotes each normalized token so FTS5 never interprets one as an
// operator. Tokens are implicitly AND-ed.
func ftsQuery(norm string) string {
	var b strings.Builder
	b.Grow(len(norm) + 16)
	for i, f := range strings.Fields(norm) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('"')
		b.WriteString(f)
		b.WriteByte('"')
	}
	return b.String()
}

// containmentScore is the fraction of the longer normalized title covered by
// the shorter one.
func containmentScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	shorter, longer := len(a), len(b)
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	return float64(shorter) / float64(longer)
}
