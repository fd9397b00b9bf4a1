package dblpstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/fetcher"
	"github.com/refcheck/refcheck/internal/match"
)

// batchSize is how many publications go into one transaction during a build.
const batchSize = 5000

// publicationElements are the dblp.xml record types worth indexing. Homepages
// (www) and editorial front matter are skipped.
var publicationElements = []string{
	"article", "inproceedings", "incollection", "book", "phdthesis", "mastersthesis",
}

// xmlPub mirrors one dblp.xml publication element.
type xmlPub struct {
	Key     string    `xml:"key,attr"`
	Authors []string  `xml:"author"`
	Title   flatTitle `xml:"title"`
	Year    string    `xml:"year"`
	EE      []string  `xml:"ee"`
}

// flatTitle flattens mixed content: dblp titles may contain <i>, <sub> and
// similar markup whose character data must be kept.
type flatTitle string

func (t *flatTitle) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.CharData:
			b.Write(v)
		case xml.EndElement:
			if v.Name == start.Name {
				*t = flatTitle(b.String())
				return nil
			}
		}
	}
}

// Build replaces the snapshot contents by streaming a dblp.xml document from
// src. Records land in batched transactions so memory stays flat across the
// multi-gigabyte input. progress, when non-nil, receives the running record
// count with total 0 while streaming and done==total once the stream ends.
func (s *Store) Build(ctx context.Context, src io.Reader, progress func(done, total uint64)) error {
	start := time.Now()

	// A local cancel unblocks the decoder goroutine when a batch fails.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.clear(ctx); err != nil {
		return err
	}

	pubCh, errCh := fetcher.StreamXML[xmlPub](ctx, src, publicationElements...)

	var (
		inserted uint64
		batch    []xmlPub
	)
	for pub := range pubCh {
		if strings.TrimSpace(string(pub.Title)) == "" {
			continue
		}
		batch = append(batch, pub)
		if len(batch) >= batchSize {
			n, err := s.insertBatch(ctx, batch)
			if err != nil {
				return err
			}
			inserted += n
			batch = batch[:0]
			if progress != nil {
				progress(inserted, 0)
			}
		}
	}
	if err := <-errCh; err != nil {
		return eris.Wrap(err, "dblpstore: stream snapshot")
	}

	if len(batch) > 0 {
		n, err := s.insertBatch(ctx, batch)
		if err != nil {
			return err
		}
		inserted += n
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO pubs_fts(pubs_fts) VALUES('optimize')`); err != nil {
		return eris.Wrap(err, "dblpstore: optimize fts")
	}
	if err := s.setMeta(ctx, "built_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := s.setMeta(ctx, "record_count", strconv.FormatUint(inserted, 10)); err != nil {
		return err
	}

	if progress != nil {
		progress(inserted, inserted)
	}
	zap.L().Info("dblp snapshot built",
		zap.Uint64("records", inserted),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// clear wipes contents and metadata together, so an interrupted build can
// never leave stale built_at or etag rows describing rows that are gone.
func (s *Store) clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pubs`); err != nil {
		return eris.Wrap(err, "dblpstore: clear pubs")
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO pubs_fts(pubs_fts) VALUES('delete-all')`); err != nil {
		return eris.Wrap(err, "dblpstore: clear fts")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM _meta`); err != nil {
		return eris.Wrap(err, "dblpstore: clear meta")
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, batch []xmlPub) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "dblpstore: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	insertPub, err := tx.PrepareContext(ctx,
		`INSERT INTO pubs (norm_title, title, authors, url, year) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "dblpstore: prepare pubs insert")
	}
	defer insertPub.Close()

	insertFTS, err := tx.PrepareContext(ctx,
		`INSERT INTO pubs_fts (rowid, norm_title) VALUES (?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "dblpstore: prepare fts insert")
	}
	defer insertFTS.Close()

	var inserted uint64
	for _, pub := range batch {
		title := strings.TrimSuffix(strings.TrimSpace(string(pub.Title)), ".")
		norm := match.NormalizeTitle(title)
		if norm == "" {
			continue
		}

		authorsJSON, err := json.Marshal(nonEmpty(pub.Authors))
		if err != nil {
			return 0, eris.Wrap(err, "dblpstore: marshal authors")
		}

		var year sql.NullInt64
		if y, err := strconv.Atoi(strings.TrimSpace(pub.Year)); err == nil {
			year = sql.NullInt64{Int64: int64(y), Valid: true}
		}

		res, err := insertPub.ExecContext(ctx, norm, title, string(authorsJSON), firstEE(pub.EE), year)
		if err != nil {
			return 0, eris.Wrapf(err, "dblpstore: insert %s", pub.Key)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, eris.Wrap(err, "dblpstore: last insert id")
		}
		if _, err := insertFTS.ExecContext(ctx, id, norm); err != nil {
			return 0, eris.Wrapf(err, "dblpstore: index %s", pub.Key)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "dblpstore: commit batch")
	}
	return inserted, nil
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstEE(ee []string) string {
	for _, e := range ee {
		if t := strings.TrimSpace(e); t != "" {
			return t
		}
	}
	return ""
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`, key, value)
	return eris.Wrapf(err, "dblpstore: set meta %s", key)
}
