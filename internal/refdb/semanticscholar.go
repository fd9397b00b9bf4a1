package refdb

import (
	"context"
	"strings"
	"time"

	"github.com/refcheck/refcheck/internal/match"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/pkg/semanticscholar"
)

// SemanticScholarAdapter resolves references against the Semantic Scholar
// graph.
type SemanticScholarAdapter struct {
	client semanticscholar.Client
}

// NewSemanticScholarAdapter wraps a Semantic Scholar client.
func NewSemanticScholarAdapter(client semanticscholar.Client) *SemanticScholarAdapter {
	return &SemanticScholarAdapter{client: client}
}

// Name implements Adapter.
func (a *SemanticScholarAdapter) Name() string { return model.DbSemanticScholar }

// Query implements Adapter.
func (a *SemanticScholarAdapter) Query(ctx context.Context, ref model.Reference) (model.DbResult, error) {
	start := time.Now()
	res := model.DbResult{DbName: model.DbSemanticScholar}

	if ref.Title == "" {
		res.Status = model.DbNotFound
		res.Elapsed = time.Since(start)
		return res, nil
	}

	papers, err := a.client.SearchPapers(ctx, ref.Title, searchLimit)
	if err != nil {
		return res, err
	}

	for i := range papers {
		p := &papers[i]
		if !a.matches(ref, p) {
			continue
		}
		authors := p.AuthorNames()
		res.Status = model.DbFound
		res.Matched = &model.MatchedRecord{
			Title:        p.Title,
			Authors:      authors,
			URL:          p.URL,
			Year:         p.YearString(),
			AuthorsMatch: match.AuthorsMatch(ref.Authors, authors),
		}
		res.Elapsed = time.Since(start)
		return res, nil
	}

	res.Status = model.DbNotFound
	res.Elapsed = time.Since(start)
	return res, nil
}

// matches accepts a title match, or an exact external identifier match when
// the reference carries a DOI or arXiv id.
func (a *SemanticScholarAdapter) matches(ref model.Reference, p *semanticscholar.Paper) bool {
	if ref.DOI != "" && strings.EqualFold(ref.DOI, p.ExternalIDs.DOI) {
		return true
	}
	if ref.ArxivID != "" && ref.ArxivID == p.ExternalIDs.ArXiv {
		return true
	}
	return match.TitlesMatch(ref.Title, p.Title)
}
