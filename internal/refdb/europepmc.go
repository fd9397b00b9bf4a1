package refdb

import (
	"context"
	"strings"
	"time"

	"github.com/refcheck/refcheck/internal/match"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/pkg/europepmc"
)

// EuropePMCAdapter resolves references against Europe PMC, which covers life
// science literature beyond PubMed's index.
type EuropePMCAdapter struct {
	client europepmc.Client
}

// NewEuropePMCAdapter wraps a Europe PMC client.
func NewEuropePMCAdapter(client europepmc.Client) *EuropePMCAdapter {
	return &EuropePMCAdapter{client: client}
}

// Name implements Adapter.
func (a *EuropePMCAdapter) Name() string { return model.DbEuropePMC }

// Query implements Adapter.
func (a *EuropePMCAdapter) Query(ctx context.Context, ref model.Reference) (model.DbResult, error) {
	start := time.Now()
	res := model.DbResult{DbName: model.DbEuropePMC}

	if ref.Title == "" {
		res.Status = model.DbNotFound
		res.Elapsed = time.Since(start)
		return res, nil
	}

	results, err := a.client.SearchTitle(ctx, ref.Title, searchLimit)
	if err != nil {
		return res, err
	}

	for i := range results {
		r := &results[i]
		if !a.matches(ref, r) {
			continue
		}
		authors := r.AuthorNames()
		res.Status = model.DbFound
		res.Matched = &model.MatchedRecord{
			Title:        r.CleanTitle(),
			Authors:      authors,
			URL:          r.ArticleURL(),
			Year:         r.PubYear,
			AuthorsMatch: match.AuthorsMatch(ref.Authors, authors),
		}
		res.Elapsed = time.Since(start)
		return res, nil
	}

	res.Status = model.DbNotFound
	res.Elapsed = time.Since(start)
	return res, nil
}

func (a *EuropePMCAdapter) matches(ref model.Reference, r *europepmc.Result) bool {
	if ref.DOI != "" && strings.EqualFold(ref.DOI, r.DOI) {
		return true
	}
	return match.TitlesMatch(ref.Title, r.CleanTitle())
}
