package refdb

import (
	"context"
	"strings"
	"time"

	"github.com/refcheck/refcheck/internal/match"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/pkg/pubmed"
)

// PubMedAdapter resolves references against PubMed via the NCBI E-utilities.
// PubMed marks retracted publications with a dedicated publication type.
type PubMedAdapter struct {
	client pubmed.Client
}

// NewPubMedAdapter wraps a PubMed client.
func NewPubMedAdapter(client pubmed.Client) *PubMedAdapter {
	return &PubMedAdapter{client: client}
}

// Name implements Adapter.
func (a *PubMedAdapter) Name() string { return model.DbPubMed }

// Query implements Adapter.
func (a *PubMedAdapter) Query(ctx context.Context, ref model.Reference) (model.DbResult, error) {
	start := time.Now()
	res := model.DbResult{DbName: model.DbPubMed}

	if ref.Title == "" {
		res.Status = model.DbNotFound
		res.Elapsed = time.Since(start)
		return res, nil
	}

	summaries, err := a.client.SearchTitle(ctx, ref.Title, searchLimit)
	if err != nil {
		return res, err
	}

	for i := range summaries {
		s := &summaries[i]
		if !a.matches(ref, s) {
			continue
		}
		authors := s.AuthorNames()
		res.Status = model.DbFound
		res.Matched = &model.MatchedRecord{
			Title:        s.CleanTitle(),
			Authors:      authors,
			URL:          s.ArticleURL(),
			Year:         s.Year(),
			AuthorsMatch: match.AuthorsMatch(ref.Authors, authors),
		}
		if s.Retracted() {
			res.Retraction = &model.RetractionInfo{
				Retracted: true,
				Source:    model.DbPubMed,
			}
		}
		res.Elapsed = time.Since(start)
		return res, nil
	}

	res.Status = model.DbNotFound
	res.Elapsed = time.Since(start)
	return res, nil
}

func (a *PubMedAdapter) matches(ref model.Reference, s *pubmed.Summary) bool {
	if ref.DOI != "" && strings.EqualFold(ref.DOI, s.DOI()) {
		return true
	}
	return match.TitlesMatch(ref.Title, s.CleanTitle())
}
