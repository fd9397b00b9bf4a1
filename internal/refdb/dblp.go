package refdb

import (
	"context"
	"strings"
	"time"

	"github.com/refcheck/refcheck/internal/match"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/pkg/dblp"
)

// DBLPAdapter resolves references against the online DBLP search API.
type DBLPAdapter struct {
	client dblp.Client
}

// NewDBLPAdapter wraps a DBLP client.
func NewDBLPAdapter(client dblp.Client) *DBLPAdapter {
	return &DBLPAdapter{client: client}
}

// Name implements Adapter.
func (a *DBLPAdapter) Name() string { return model.DbDBLP }

// Query implements Adapter.
func (a *DBLPAdapter) Query(ctx context.Context, ref model.Reference) (model.DbResult, error) {
	start := time.Now()
	res := model.DbResult{DbName: model.DbDBLP}

	if ref.Title == "" {
		res.Status = model.DbNotFound
		res.Elapsed = time.Since(start)
		return res, nil
	}

	pubs, err := a.client.SearchPublications(ctx, ref.Title, searchLimit)
	if err != nil {
		return res, err
	}

	for i := range pubs {
		p := &pubs[i]
		if !a.matches(ref, p) {
			continue
		}
		authors := p.AuthorNames()
		res.Status = model.DbFound
		res.Matched = &model.MatchedRecord{
			Title:        p.CleanTitle(),
			Authors:      authors,
			URL:          p.URL,
			Year:         p.Year,
			AuthorsMatch: match.AuthorsMatch(ref.Authors, authors),
		}
		res.Elapsed = time.Since(start)
		return res, nil
	}

	res.Status = model.DbNotFound
	res.Elapsed = time.Since(start)
	return res, nil
}

func (a *DBLPAdapter) matches(ref model.Reference, p *dblp.Publication) bool {
	if ref.DOI != "" && strings.EqualFold(ref.DOI, p.DOI) {
		return true
	}
	return match.TitlesMatch(ref.Title, p.CleanTitle())
}
