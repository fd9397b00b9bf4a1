// Package dblp queries the DBLP publication search API.
package dblp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/refcheck/refcheck/internal/resilience"
)

const defaultBaseURL = "https://dblp.org"

// DBLP disambiguates homonymous authors with a numeric suffix ("Wei Wang 0001").
var homonymSuffixRe = regexp.MustCompile(`\s+\d{4}$`)

// Client searches publications on DBLP.
type Client interface {
	// SearchPublications runs a query against the publication index and
	// returns up to hits results.
	SearchPublications(ctx context.Context, query string, hits int) ([]Publication, error)
}

// Publication is one search hit.
type Publication struct {
	Title   string     `json:"title"`
	Year    string     `json:"year"`
	URL     string     `json:"url"`
	DOI     string     `json:"doi"`
	Authors AuthorList `json:"authors"`
}

// CleanTitle strips the trailing period DBLP appends to titles.
func (p *Publication) CleanTitle() string {
	return strings.TrimSuffix(strings.TrimSpace(p.Title), ".")
}

// AuthorNames returns author names without DBLP's homonym suffixes.
func (p *Publication) AuthorNames() []string {
	var names []string
	for _, n := range p.Authors.Names {
		n = homonymSuffixRe.ReplaceAllString(n, "")
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// AuthorList tolerates the three encodings DBLP uses for the author field:
// a bare string, an object with a text field, or an array of either.
type AuthorList struct {
	Names []string
}

func (l *AuthorList) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Author json.RawMessage `json:"author"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	raw := bytesTrimSpace(wrapper.Author)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var entries []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return err
		}
	} else {
		entries = []json.RawMessage{raw}
	}

	for _, entry := range entries {
		name, err := authorName(entry)
		if err != nil {
			return err
		}
		if name != "" {
			l.Names = append(l.Names, name)
		}
	}
	return nil
}

func authorName(raw json.RawMessage) (string, error) {
	raw = bytesTrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	return obj.Text, nil
}

func bytesTrimSpace(b []byte) []byte {
	return []byte(strings.TrimSpace(string(b)))
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

// NewClient creates a DBLP API client.
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

func (c *httpClient) SearchPublications(ctx context.Context, query string, hits int) ([]Publication, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("h", strconv.Itoa(hits))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/publ/api?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "dblp: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "dblp: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "dblp: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientHTTPError(
			eris.Errorf("dblp: status %d: %s", resp.StatusCode, snippet(body)), resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("dblp: unexpected status %d: %s", resp.StatusCode, snippet(body))
	}

	var envelope struct {
		Result struct {
			Hits struct {
				Hit []struct {
					Info Publication `json:"info"`
				} `json:"hit"`
			} `json:"hits"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "dblp: unmarshal response")
	}

	pubs := make([]Publication, 0, len(envelope.Result.Hits.Hit))
	for _, h := range envelope.Result.Hits.Hit {
		pubs = append(pubs, h.Info)
	}
	return pubs, nil
}

func snippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}
