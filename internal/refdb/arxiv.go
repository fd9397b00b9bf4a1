package refdb

import (
	"context"
	"time"

	"github.com/refcheck/refcheck/internal/match"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/pkg/arxiv"
)

// ArxivAdapter resolves references against arXiv. A parsed arXiv id is the
// preferred lookup key; a quoted title search is the fallback.
type ArxivAdapter struct {
	client arxiv.Client
}

// NewArxivAdapter wraps an arXiv client.
func NewArxivAdapter(client arxiv.Client) *ArxivAdapter {
	return &ArxivAdapter{client: client}
}

// Name implements Adapter.
func (a *ArxivAdapter) Name() string { return model.DbArxiv }

// Query implements Adapter.
func (a *ArxivAdapter) Query(ctx context.Context, ref model.Reference) (model.DbResult, error) {
	start := time.Now()
	res := model.DbResult{DbName: model.DbArxiv}

	if ref.ArxivID != "" {
		entry, err := a.client.ByID(ctx, ref.ArxivID)
		if err != nil {
			return res, err
		}
		if entry == nil {
			res.ArxivCheck = &model.ArxivInfo{ArxivID: ref.ArxivID, Valid: false}
		} else {
			res.ArxivCheck = &model.ArxivInfo{ArxivID: ref.ArxivID, Valid: true, Title: entry.CleanTitle()}
			if ref.Title == "" || match.TitlesMatch(ref.Title, entry.CleanTitle()) {
				return a.found(res, ref, entry, start), nil
			}
			// The id points at a different paper; fall through to title
			// search and keep the check result either way.
		}
	}

	if ref.Title == "" {
		res.Status = model.DbNotFound
		res.Elapsed = time.Since(start)
		return res, nil
	}

	entries, err := a.client.SearchTitle(ctx, ref.Title, searchLimit)
	if err != nil {
		return res, err
	}
	for i := range entries {
		if match.TitlesMatch(ref.Title, entries[i].CleanTitle()) {
			return a.found(res, ref, &entries[i], start), nil
		}
	}

	res.Status = model.DbNotFound
	res.Elapsed = time.Since(start)
	return res, nil
}

func (a *ArxivAdapter) found(res model.DbResult, ref model.Reference, e *arxiv.Entry, start time.Time) model.DbResult {
	authors := e.AuthorNames()
	res.Status = model.DbFound
	res.Matched = &model.MatchedRecord{
		Title:        e.CleanTitle(),
		Authors:      authors,
		URL:          e.AbsURL(),
		Year:         e.Year(),
		AuthorsMatch: match.AuthorsMatch(ref.Authors, authors),
	}
	res.Elapsed = time.Since(start)
	return res
}
