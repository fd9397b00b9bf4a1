package refdb

import (
	"context"
	"strings"
	"time"

	"github.com/refcheck/refcheck/internal/match"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/pkg/openalex"
)

// OpenAlexAdapter resolves references against OpenAlex, which flags
// retracted works directly on the record.
type OpenAlexAdapter struct {
	client openalex.Client
}

// NewOpenAlexAdapter wraps an OpenAlex client.
func NewOpenAlexAdapter(client openalex.Client) *OpenAlexAdapter {
	return &OpenAlexAdapter{client: client}
}

// Name implements Adapter.
func (a *OpenAlexAdapter) Name() string { return model.DbOpenAlex }

// Query implements Adapter.
func (a *OpenAlexAdapter) Query(ctx context.Context, ref model.Reference) (model.DbResult, error) {
	start := time.Now()
	res := model.DbResult{DbName: model.DbOpenAlex}

	if ref.Title == "" {
		res.Status = model.DbNotFound
		res.Elapsed = time.Since(start)
		return res, nil
	}

	works, err := a.client.SearchWorks(ctx, ref.Title, searchLimit)
	if err != nil {
		return res, err
	}

	for i := range works {
		w := &works[i]
		if !a.matches(ref, w) {
			continue
		}
		authors := w.AuthorNames()
		res.Status = model.DbFound
		res.Matched = &model.MatchedRecord{
			Title:        w.Title,
			Authors:      authors,
			URL:          w.PageURL(),
			Year:         w.Year(),
			AuthorsMatch: match.AuthorsMatch(ref.Authors, authors),
		}
		if w.IsRetracted {
			res.Retraction = &model.RetractionInfo{
				Retracted: true,
				Source:    model.DbOpenAlex,
			}
		}
		res.Elapsed = time.Since(start)
		return res, nil
	}

	res.Status = model.DbNotFound
	res.Elapsed = time.Since(start)
	return res, nil
}

// matches accepts a title match, or a DOI match when the reference carries
// one (DOIs compare case-insensitively).
func (a *OpenAlexAdapter) matches(ref model.Reference, w *openalex.Work) bool {
	if ref.DOI != "" && strings.EqualFold(ref.DOI, w.BareDOI()) {
		return true
	}
	return match.TitlesMatch(ref.Title, w.Title)
}
