// Package pubmed queries the NCBI E-utilities for PubMed records.
package pubmed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/refcheck/refcheck/internal/resilience"
)

const defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Client looks up articles on PubMed. A lookup is two E-utilities calls:
// esearch resolves a term to PMIDs, esummary fetches their metadata.
type Client interface {
	// SearchTitle finds articles whose title matches and returns up to
	// retMax summaries, in PubMed's relevance order.
	SearchTitle(ctx context.Context, title string, retMax int) ([]Summary, error)
}

// Summary is one article's esummary record.
type Summary struct {
	UID         string      `json:"uid"`
	Title       string      `json:"title"`
	PubDate     string      `json:"pubdate"`
	Authors     []Author    `json:"authors"`
	ELocationID string      `json:"elocationid"`
	ArticleIDs  []ArticleID `json:"articleids"`
	PubTypes    []string    `json:"pubtype"`
}

// CleanTitle strips the trailing period PubMed appends to titles.
func (s *Summary) CleanTitle() string {
	return strings.TrimSuffix(strings.TrimSpace(s.Title), ".")
}

// Year returns the publication year as a string, or "".
func (s *Summary) Year() string {
	if len(s.PubDate) < 4 {
		return ""
	}
	return s.PubDate[:4]
}

// AuthorNames returns author names, skipping empty entries.
func (s *Summary) AuthorNames() []string {
	var names []string
	for _, a := range s.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// DOI returns the article's DOI from the identifier list, falling back to
// the elocationid field ("doi: 10.x/y").
func (s *Summary) DOI() string {
	for _, id := range s.ArticleIDs {
		if id.IDType == "doi" && id.Value != "" {
			return id.Value
		}
	}
	loc := strings.TrimSpace(s.ELocationID)
	if rest, ok := strings.CutPrefix(loc, "doi: "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// Retracted reports whether PubMed flags the article as retracted.
func (s *Summary) Retracted() bool {
	for _, pt := range s.PubTypes {
		if pt == "Retracted Publication" {
			return true
		}
	}
	return false
}

// ArticleURL returns the PubMed page for the article.
func (s *Summary) ArticleURL() string {
	if s.UID == "" {
		return ""
	}
	return "https://pubmed.ncbi.nlm.nih.gov/" + s.UID + "/"
}

// Author is one article author.
type Author struct {
	Name string `json:"name"`
}

// ArticleID is one external identifier for an article.
type ArticleID struct {
	IDType string `json:"idtype"`
	Value  string `json:"value"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default E-utilities base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a PubMed client. An empty apiKey uses NCBI's anonymous
// rate tier.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchTitle(ctx context.Context, title string, retMax int) ([]Summary, error) {
	ids, err := c.esearch(ctx, title, retMax)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return c.esummary(ctx, ids)
}

func (c *httpClient) esearch(ctx context.Context, title string, retMax int) ([]string, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", searchTerm(title))
	q.Set("retmax", strconv.Itoa(retMax))
	q.Set("retmode", "json")
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}

	body, err := c.get(ctx, c.baseURL+"/esearch.fcgi?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var envelope struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "pubmed: unmarshal esearch response")
	}
	return envelope.ESearchResult.IDList, nil
}

func (c *httpClient) esummary(ctx context.Context, ids []string) ([]Summary, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "json")
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}

	body, err := c.get(ctx, c.baseURL+"/esummary.fcgi?"+q.Encode())
	if err != nil {
		return nil, err
	}

	// The result object maps each PMID to its record, plus a "uids" key
	// listing them in order.
	var envelope struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "pubmed: unmarshal esummary response")
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		raw, ok := envelope.Result[id]
		if !ok {
			continue
		}
		var s Summary
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s.UID == "" {
			s.UID = id
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (c *httpClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pubmed: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pubmed: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pubmed: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientHTTPError(
			eris.Errorf("pubmed: status %d: %s", resp.StatusCode, snippet(body)), resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("pubmed: unexpected status %d: %s", resp.StatusCode, snippet(body))
	}
	return body, nil
}

// searchTerm builds a title-field query. Brackets and quotes have meaning
// in PubMed query syntax, so they are dropped from the phrase.
func searchTerm(title string) string {
	phrase := strings.NewReplacer(`"`, "", "[", " ", "]", " ", "(", " ", ")", " ").Replace(title)
	phrase = strings.Join(strings.Fields(phrase), " ")
	return phrase + "[Title]"
}

func snippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}
