// Package europepmc queries the Europe PMC REST API.
package europepmc

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

const defaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

// Client searches articles on Europe PMC.
type Client interface {
	// SearchTitle runs a quoted title query and returns up to pageSize
	// results.
	SearchTitle(ctx context.Context, title string, pageSize int) ([]Result, error)
}

// Result is one article from the search endpoint.
type Result struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Title        string `json:"title"`
	AuthorString string `json:"authorString"`
	PubYear      string `json:"pubYear"`
	DOI          string `json:"doi"`
}

// CleanTitle strips the trailing period Europe PMC appends to titles.
func (r *Result) CleanTitle() string {
	return strings.TrimSuffix(strings.TrimSpace(r.Title), ".")
}

// AuthorNames splits the comma-joined author string.
func (r *Result) AuthorNames() []string {
	s := strings.TrimSuffix(strings.TrimSpace(r.AuthorString), ".")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ", ")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}

// ArticleURL returns the Europe PMC article page.
func (r *Result) ArticleURL() string {
	if r.Source == "" || r.ID == "" {
		return ""
	}
	return "https://europepmc.org/article/" + r.Source + "/" + r.ID
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
	baseURL string
	http    *http.Client
}

// NewClient creates a Europe PMC API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
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

func (c *httpClient) SearchTitle(ctx context.Context, title string, pageSize int) ([]Result, error) {
	phrase := strings.ReplaceAll(title, `"`, "")
	q := url.Values{}
	q.Set("query", `TITLE:"`+phrase+`"`)
	q.Set("format", "json")
	q.Set("pageSize", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "europepmc: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "europepmc: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "europepmc: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientHTTPError(
			eris.Errorf("europepmc: status %d: %s", resp.StatusCode, snippet(body)), resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("europepmc: unexpected status %d: %s", resp.StatusCode, snippet(body))
	}

	var envelope struct {
		ResultList struct {
			Result []Result `json:"result"`
		} `json:"resultList"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "europepmc: unmarshal response")
	}
	return envelope.ResultList.Result, nil
}

func snippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}
