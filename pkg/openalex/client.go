// Package openalex queries the OpenAlex works API.
package openalex

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

const (
	defaultBaseURL = "https://api.openalex.org"

	selectFields = "id,title,doi,publication_year,is_retracted,primary_location,authorships"
)

// Client searches works on OpenAlex.
type Client interface {
	// SearchWorks runs a full-text search over works and returns up to
	// perPage results.
	SearchWorks(ctx context.Context, query string, perPage int) ([]Work, error)
}

// Work is one record from the works endpoint.
type Work struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	DOI             string       `json:"doi"`
	PublicationYear int          `json:"publication_year"`
	IsRetracted     bool         `json:"is_retracted"`
	PrimaryLocation Location     `json:"primary_location"`
	Authorships     []Authorship `json:"authorships"`
}

// BareDOI strips the https://doi.org/ prefix OpenAlex puts on DOIs.
func (w *Work) BareDOI() string {
	return strings.TrimPrefix(w.DOI, "https://doi.org/")
}

// Year returns the publication year as a string, or "".
func (w *Work) Year() string {
	if w.PublicationYear <= 0 {
		return ""
	}
	return strconv.Itoa(w.PublicationYear)
}

// AuthorNames returns author display names, skipping empty entries.
func (w *Work) AuthorNames() []string {
	var names []string
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			names = append(names, a.Author.DisplayName)
		}
	}
	return names
}

// PageURL returns the landing page for the work, falling back to the DOI
// resolver or the OpenAlex record itself.
func (w *Work) PageURL() string {
	if w.PrimaryLocation.LandingPageURL != "" {
		return w.PrimaryLocation.LandingPageURL
	}
	if w.DOI != "" {
		return w.DOI
	}
	return w.ID
}

// Location is where a work version lives.
type Location struct {
	LandingPageURL string `json:"landing_page_url"`
	PDFURL         string `json:"pdf_url"`
}

// Authorship attributes a work to one author.
type Authorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
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

// WithMailto sets the contact address OpenAlex asks identified clients to
// send.
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

// NewClient creates an OpenAlex API client.
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

func (c *httpClient) SearchWorks(ctx context.Context, query string, perPage int) ([]Work, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("per-page", strconv.Itoa(perPage))
	q.Set("select", selectFields)
	if c.mailto != "" {
		q.Set("mailto", c.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/works?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientHTTPError(
			eris.Errorf("openalex: status %d: %s", resp.StatusCode, snippet(body)), resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("openalex: unexpected status %d: %s", resp.StatusCode, snippet(body))
	}

	var envelope struct {
		Results []Work `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "openalex: unmarshal response")
	}
	return envelope.Results, nil
}

func snippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}
