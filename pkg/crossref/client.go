// Package crossref queries the CrossRef REST API for bibliographic works.
package crossref

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
	defaultBaseURL   = "https://api.crossref.org"
	defaultUserAgent = "refcheck/1.0 (https://github.com/refcheck/refcheck)"

	// selectFields trims work records to the fields we read.
	selectFields = "DOI,title,author,issued,URL,update-to,updated-by"
)

// Client looks up works on CrossRef.
type Client interface {
	// SearchBibliographic runs a relevance query against the works index
	// and returns up to rows results.
	SearchBibliographic(ctx context.Context, query string, rows int) ([]Work, error)

	// WorkByDOI fetches the work registered under doi. It returns
	// (nil, nil) when CrossRef has no record for the DOI.
	WorkByDOI(ctx context.Context, doi string) (*Work, error)
}

// Work is one bibliographic record from the works endpoint.
type Work struct {
	DOI       string    `json:"DOI"`
	TitleList []string  `json:"title"`
	Author    []Author  `json:"author"`
	Issued    DateParts `json:"issued"`
	URL       string    `json:"URL"`
	UpdatedBy []Update  `json:"updated-by"`
}

// Title returns the primary title, or "" when the record carries none.
func (w *Work) Title() string {
	if len(w.TitleList) == 0 {
		return ""
	}
	return w.TitleList[0]
}

// Year returns the issued year as a string, or "".
func (w *Work) Year() string {
	dp := w.Issued.DateParts
	if len(dp) == 0 || len(dp[0]) == 0 {
		return ""
	}
	return strconv.Itoa(dp[0][0])
}

// AuthorNames returns "Given Family" strings, skipping empty entries.
func (w *Work) AuthorNames() []string {
	var names []string
	for _, a := range w.Author {
		if n := a.Name(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Retraction returns the retraction or withdrawal notice that updates this
// work, or nil when the work stands.
func (w *Work) Retraction() *Update {
	for i := range w.UpdatedBy {
		switch w.UpdatedBy[i].Type {
		case "retraction", "withdrawal", "removal":
			return &w.UpdatedBy[i]
		}
	}
	return nil
}

// Author is a work contributor.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

// Name joins the given and family names.
func (a Author) Name() string {
	switch {
	case a.Given == "":
		return a.Family
	case a.Family == "":
		return a.Given
	default:
		return a.Given + " " + a.Family
	}
}

// DateParts is CrossRef's nested date encoding: [[year, month, day]].
type DateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// Update links a work to a correction, retraction, or withdrawal notice.
type Update struct {
	Type  string `json:"type"`
	DOI   string `json:"DOI"`
	Label string `json:"label"`
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

// WithMailto sets the contact address sent with every request, which admits
// the client to CrossRef's polite pool.
func WithMailto(email string) Option {
	return func(c *httpClient) {
		c.mailto = email
	}
}

type httpClient struct {
	baseURL string
	mailto  string
	http    *http.Client
}

// NewClient creates a CrossRef API client.
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

func (c *httpClient) SearchBibliographic(ctx context.Context, query string, rows int) ([]Work, error) {
	q := url.Values{}
	q.Set("query.bibliographic", query)
	q.Set("rows", strconv.Itoa(rows))
	q.Set("select", selectFields)
	if c.mailto != "" {
		q.Set("mailto", c.mailto)
	}

	body, status, err := c.get(ctx, c.baseURL+"/works?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("crossref: unexpected status %d: %s", status, snippet(body))
	}

	var envelope struct {
		Message struct {
			Items []Work `json:"items"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "crossref: unmarshal search response")
	}
	return envelope.Message.Items, nil
}

func (c *httpClient) WorkByDOI(ctx context.Context, doi string) (*Work, error) {
	u := c.baseURL + "/works/" + url.PathEscape(doi)
	if c.mailto != "" {
		u += "?mailto=" + url.QueryEscape(c.mailto)
	}

	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case status != http.StatusOK:
		return nil, eris.Errorf("crossref: unexpected status %d: %s", status, snippet(body))
	}

	var envelope struct {
		Message Work `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "crossref: unmarshal work response")
	}
	return &envelope.Message, nil
}

// get performs a GET and reads the body. Rate limits and server errors come
// back as transient errors carrying any Retry-After hint; other statuses are
// returned to the caller for per-endpoint handling.
func (c *httpClient) get(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "crossref: create request")
	}
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "crossref: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "crossref: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resp.StatusCode, resilience.NewTransientHTTPError(
			eris.Errorf("crossref: status %d: %s", resp.StatusCode, snippet(body)), resp)
	}
	return body, resp.StatusCode, nil
}

func (c *httpClient) userAgent() string {
	if c.mailto != "" {
		return defaultUserAgent + " mailto:" + c.mailto
	}
	return defaultUserAgent
}

func snippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}
