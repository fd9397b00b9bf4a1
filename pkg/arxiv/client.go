// Package arxiv queries the arXiv Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
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

const defaultBaseURL = "https://export.arxiv.org/api"

var (
	versionRe    = regexp.MustCompile(`v\d+$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Client looks up papers on arXiv.
type Client interface {
	// ByID fetches the entry for one arXiv identifier such as
	// "2301.12345" or "cs/0701234". It returns (nil, nil) when arXiv has
	// no paper under that identifier.
	ByID(ctx context.Context, id string) (*Entry, error)

	// SearchTitle runs a quoted title phrase query and returns up to max
	// entries.
	SearchTitle(ctx context.Context, title string, max int) ([]Entry, error)
}

type feed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []Entry  `xml:"entry"`
}

// Entry is one paper in an Atom feed.
type Entry struct {
	ID        string   `xml:"id"`
	Title     string   `xml:"title"`
	Published string   `xml:"published"`
	Authors   []Author `xml:"author"`
}

// ArxivID extracts the bare identifier from the entry's abs URL, without
// the version suffix. Returns "" when the entry is not a paper (arXiv
// reports bad identifiers as an error entry in an otherwise valid feed).
func (e *Entry) ArxivID() string {
	_, id, ok := strings.Cut(e.ID, "/abs/")
	if !ok {
		return ""
	}
	return versionRe.ReplaceAllString(id, "")
}

// CleanTitle collapses the line wrapping Atom puts inside long titles.
func (e *Entry) CleanTitle() string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(e.Title, " "))
}

// Year returns the publication year as a string, or "".
func (e *Entry) Year() string {
	if len(e.Published) < 4 {
		return ""
	}
	return e.Published[:4]
}

// AbsURL returns the abstract page URL.
func (e *Entry) AbsURL() string {
	return e.ID
}

// AuthorNames returns author names, skipping empty entries.
func (e *Entry) AuthorNames() []string {
	var names []string
	for _, a := range e.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// Author is one paper author.
type Author struct {
	Name string `xml:"name"`
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

// NewClient creates an arXiv API client.
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

func (c *httpClient) ByID(ctx context.Context, id string) (*Entry, error) {
	q := url.Values{}
	q.Set("id_list", id)
	q.Set("max_results", "1")

	f, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(f.Entries) == 0 || f.Entries[0].ArxivID() == "" {
		return nil, nil
	}
	return &f.Entries[0], nil
}

func (c *httpClient) SearchTitle(ctx context.Context, title string, max int) ([]Entry, error) {
	phrase := strings.ReplaceAll(title, `"`, "")
	q := url.Values{}
	q.Set("search_query", `ti:"`+phrase+`"`)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(max))

	f, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}
	return f.Entries, nil
}

func (c *httpClient) query(ctx context.Context, q url.Values) (*feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientHTTPError(
			eris.Errorf("arxiv: status %d: %s", resp.StatusCode, snippet(body)), resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("arxiv: unexpected status %d: %s", resp.StatusCode, snippet(body))
	}

	var f feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, eris.Wrap(err, "arxiv: unmarshal feed")
	}
	return &f, nil
}

func snippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}
