package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refcheck/refcheck/internal/model"
)

func timedOut(db string) model.DbResult {
	return model.DbResult{DbName: db, Status: model.DbTimeout, Error: "context deadline exceeded"}
}

func errored(db string) model.DbResult {
	return model.DbResult{DbName: db, Status: model.DbError, Error: "bad gateway"}
}

func TestAggregateVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		results []model.DbResult
		status  model.Status
		chosen  string
		failed  []string
	}{
		{
			name:    "all found chooses first in order",
			results: []model.DbResult{found("alpha"), found("beta")},
			status:  model.StatusVerified,
			chosen:  "alpha",
		},
		{
			name:    "later hit still verifies",
			results: []model.DbResult{notFound("alpha"), found("beta")},
			status:  model.StatusVerified,
			chosen:  "beta",
		},
		{
			name:    "hit beats failures",
			results: []model.DbResult{errored("alpha"), found("beta")},
			status:  model.StatusVerified,
			chosen:  "beta",
			failed:  []string{"alpha"},
		},
		{
			name:    "unanimous miss flags hallucination",
			results: []model.DbResult{notFound("alpha"), notFound("beta")},
			status:  model.StatusLikelyHallucinated,
		},
		{
			name:    "timeout blocks hallucination verdict",
			results: []model.DbResult{notFound("alpha"), timedOut("beta")},
			status:  model.StatusUnverified,
			failed:  []string{"beta"},
		},
		{
			name:    "error blocks hallucination verdict",
			results: []model.DbResult{notFound("alpha"), errored("beta")},
			status:  model.StatusUnverified,
			failed:  []string{"beta"},
		},
		{
			name:    "skip blocks hallucination verdict",
			results: []model.DbResult{notFound("alpha"), {DbName: "beta", Status: model.DbSkipped}},
			status:  model.StatusUnverified,
		},
		{
			name:   "no database results",
			status: model.StatusUnverified,
		},
		{
			name: "retraction beats verification",
			results: []model.DbResult{found("alpha"), {
				DbName:     "beta",
				Status:     model.DbFound,
				Retraction: &model.RetractionInfo{Retracted: true, Source: "beta"},
			}},
			status: model.StatusRetracted,
			chosen: "alpha",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := aggregate(ref("Some Cited Work"), tt.results)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.chosen, res.ChosenSource)
			assert.Equal(t, tt.failed, res.FailedDBs)
			assert.Equal(t, "Some Cited Work", res.Reference.Title)
		})
	}
}

func TestAggregateLiftsIdentifierChecks(t *testing.T) {
	doi := &model.DoiInfo{DOI: "10.1000/xyz", Valid: true, Title: "Attention Is All You Need"}
	arxiv := &model.ArxivInfo{ArxivID: "1706.03762", Valid: true}

	results := []model.DbResult{
		{DbName: "alpha", Status: model.DbFound, DoiCheck: doi},
		{DbName: "beta", Status: model.DbNotFound, ArxivCheck: arxiv},
	}

	res := aggregate(ref("Attention Is All You Need"), results)
	require.NotNil(t, res.DoiInfo)
	assert.Equal(t, "10.1000/xyz", res.DoiInfo.DOI)
	require.NotNil(t, res.ArxivInfo)
	assert.Equal(t, "1706.03762", res.ArxivInfo.ArxivID)
}

func TestAggregateAuthorMismatchStillVerifies(t *testing.T) {
	hit := found("alpha")
	hit.Matched.AuthorsMatch = false

	res := aggregate(ref("Attention Is All You Need"), []model.DbResult{hit})
	assert.Equal(t, model.StatusVerified, res.Status)
	assert.False(t, res.DbResults[0].Matched.AuthorsMatch)
}

func TestAggregateUnretractedNoticeIgnored(t *testing.T) {
	hit := found("alpha")
	hit.Retraction = &model.RetractionInfo{Retracted: false}

	res := aggregate(ref("Attention Is All You Need"), []model.DbResult{hit})
	assert.Equal(t, model.StatusVerified, res.Status)
	assert.Nil(t, res.Retraction)
}
