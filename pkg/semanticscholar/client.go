// Package semanticscholar queries the Semantic Scholar Graph API.
package semanticscholar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/refcheck/refcheck/internal/resilience"
)

const (
	defaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	paperFields = "title,authors,year,externalIds,url"
)

// Client searches papers on Semantic Scholar.
type Client interface {
	// SearchPapers runs a relevance query over the paper index and returns
	// up to limit results.
	SearchPapers(ctx context.Context, query string, limit int) ([]Paper, error)
}

// Paper is one record from the paper search endpoint.
type Paper struct {
	PaperID     string      `json:"paperId"`
	Title       string      `json:"title"`
	Year        int         `json:"year"`
	URL         string      `json:"url"`
	Authors     []Author    `json:"authors"`
	ExternalIDs ExternalIDs `json:"externalIds"`
}

// YearString returns the publication year as a string, or "".
func (p *Paper) YearString() string {
	if p.Year <= 0 {
		return ""
	}
	return strconv.Itoa(p.Year)
}

// AuthorNames returns author names, skipping empty entries.
func (p *Paper) AuthorNames() []string {
	var names []string
	for _, a := range p.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// Author is one paper author.
type Author struct {
	Name string `json:"name"`
}

// ExternalIDs carries the identifiers Semantic Scholar links a paper to.
type ExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
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

// NewClient creates a Semantic Scholar client. An empty apiKey uses the
// shared anonymous pool.
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

func (c *httpClient) SearchPapers(ctx context.Context, query string, limit int) ([]Paper, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", paperFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/paper/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "semanticscholar: create request")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "semanticscholar: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "semanticscholar: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientHTTPError(
			eris.Errorf("semanticscholar: status %d: %s", resp.StatusCode, snippet(body)), resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("semanticscholar: unexpected status %d: %s", resp.StatusCode, snippet(body))
	}

	var envelope struct {
		Data []Paper `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "semanticscholar: unmarshal response")
	}
	return envelope.Data, nil
}

func snippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}
