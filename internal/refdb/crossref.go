package refdb

import (
	"context"
	"time"

	"github.com/refcheck/refcheck/internal/match"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/pkg/crossref"
)

// CrossrefAdapter resolves references against CrossRef. A parsed DOI is the
// preferred lookup key; title search is the fallback. CrossRef is also the
// retraction authority for DOI-registered works.
type CrossrefAdapter struct {
	client crossref.Client
}

// NewCrossrefAdapter wraps a CrossRef client.
func NewCrossrefAdapter(client crossref.Client) *CrossrefAdapter {
	return &CrossrefAdapter{client: client}
}

// Name implements Adapter.
func (a *CrossrefAdapter) Name() string { return model.DbCrossref }

// Query implements Adapter.
func (a *CrossrefAdapter) Query(ctx context.Context, ref model.Reference) (model.DbResult, error) {
	start := time.Now()
	res := model.DbResult{DbName: model.DbCrossref}

	if ref.DOI != "" {
		work, err := a.client.WorkByDOI(ctx, ref.DOI)
		if err != nil {
			return res, err
		}
		if work == nil {
			res.DoiCheck = &model.DoiInfo{DOI: ref.DOI, Valid: false}
		} else {
			res.DoiCheck = &model.DoiInfo{DOI: ref.DOI, Valid: true, Title: work.Title()}
			if ref.Title == "" || match.TitlesMatch(ref.Title, work.Title()) {
				return a.found(res, ref, work, start), nil
			}
			// The DOI resolves to a different paper; fall through to the
			// title search and keep the check result either way.
		}
	}

	if ref.Title == "" {
		res.Status = model.DbNotFound
		res.Elapsed = time.Since(start)
		return res, nil
	}

	works, err := a.client.SearchBibliographic(ctx, ref.Title, searchLimit)
	if err != nil {
		return res, err
	}
	for i := range works {
		if match.TitlesMatch(ref.Title, works[i].Title()) {
			return a.found(res, ref, &works[i], start), nil
		}
	}

	res.Status = model.DbNotFound
	res.Elapsed = time.Since(start)
	return res, nil
}

func (a *CrossrefAdapter) found(res model.DbResult, ref model.Reference, w *crossref.Work, start time.Time) model.DbResult {
	authors := w.AuthorNames()
	res.Status = model.DbFound
	res.Matched = &model.MatchedRecord{
		Title:        w.Title(),
		Authors:      authors,
		URL:          workURL(w),
		Year:         w.Year(),
		AuthorsMatch: match.AuthorsMatch(ref.Authors, authors),
	}
	if u := w.Retraction(); u != nil {
		res.Retraction = &model.RetractionInfo{
			Retracted:     true,
			RetractionDOI: u.DOI,
			Source:        model.DbCrossref,
			Notice:        u.Label,
		}
	}
	res.Elapsed = time.Since(start)
	return res
}

func workURL(w *crossref.Work) string {
	if w.URL != "" {
		return w.URL
	}
	if w.DOI != "" {
		return "https://doi.org/" + w.DOI
	}
	return ""
}
