package pubmed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refcheck/refcheck/internal/resilience"
)

const esearchBody = `{
	"esearchresult": {
		"count": "1",
		"idlist": ["25642337"]
	}
}`

const esummaryBody = `{
	"result": {
		"uids": ["25642337"],
		"25642337": {
			"uid": "25642337",
			"title": "Deep learning.",
			"pubdate": "2015 May 28",
			"authors": [
				{"name": "LeCun Y"},
				{"name": "Bengio Y"},
				{"name": "Hinton G"}
			],
			"elocationid": "doi: 10.1038/nature14539",
			"articleids": [
				{"idtype": "pubmed", "value": "25642337"},
				{"idtype": "doi", "value": "10.1038/nature14539"}
			],
			"pubtype": ["Journal Article", "Review"]
		}
	}
}`

func TestSearchTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/esearch.fcgi":
			assert.Equal(t, "pubmed", r.URL.Query().Get("db"))
			assert.Equal(t, "Deep learning[Title]", r.URL.Query().Get("term"))
			assert.Equal(t, "3", r.URL.Query().Get("retmax"))
			_, _ = w.Write([]byte(esearchBody))
		case "/esummary.fcgi":
			assert.Equal(t, "25642337", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(esummaryBody))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	summaries, err := client.SearchTitle(context.Background(), "Deep learning", 3)

	require.NoError(t, err)
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, "Deep learning", s.CleanTitle())
	assert.Equal(t, "2015", s.Year())
	assert.Equal(t, []string{"LeCun Y", "Bengio Y", "Hinton G"}, s.AuthorNames())
	assert.Equal(t, "10.1038/nature14539", s.DOI())
	assert.False(t, s.Retracted())
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/25642337/", s.ArticleURL())
}

func TestSearchTitle_NoMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/esearch.fcgi", r.URL.Path, "esummary must not be called with no ids")
		_, _ = w.Write([]byte(`{"esearchresult": {"count": "0", "idlist": []}}`))
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	summaries, err := client.SearchTitle(context.Background(), "no such paper", 3)

	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestSearchTitle_APIKeyForwarded(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		if r.URL.Path == "/esearch.fcgi" {
			_, _ = w.Write([]byte(esearchBody))
			return
		}
		_, _ = w.Write([]byte(esummaryBody))
	}))
	defer srv.Close()

	client := NewClient("secret", WithBaseURL(srv.URL))
	_, err := client.SearchTitle(context.Background(), "Deep learning", 3)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSearchTitle_RateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	_, err := client.SearchTitle(context.Background(), "anything", 1)

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestSummary_Retracted(t *testing.T) {
	s := Summary{PubTypes: []string{"Journal Article", "Retracted Publication"}}
	assert.True(t, s.Retracted())
}

func TestSummary_DOIFallsBackToELocationID(t *testing.T) {
	s := Summary{ELocationID: "doi: 10.1000/xyz"}
	assert.Equal(t, "10.1000/xyz", s.DOI())

	s = Summary{ELocationID: "pii: S0140-6736(20)30183-5"}
	assert.Equal(t, "", s.DOI())
}

func TestSearchTerm_StripsQuerySyntax(t *testing.T) {
	assert.Equal(t, "BERT pre-training of deep bidirectional transformers[Title]",
		searchTerm(`BERT [pre-training] of "deep" (bidirectional) transformers`))
}
