// Package search looks up current financial information through a
// Tavily-compatible search API.
//
// Search never fails: a missing API key or any transport problem is
// reported as a literal string the calling node can pass to the model.
// Lookup exposes the structured results and the underlying error.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	flowerrors "github.com/randalmurphal/mindflow/pkg/flowgraph/errors"
)

// DefaultEndpoint is the Tavily search endpoint.
const DefaultEndpoint = "https://api.tavily.com/search"

// Literal results for a degraded search.
const (
	Disabled        = "Search disabled (No API Key)."
	NoResults       = "No results found."
	unavailablePref = "Search unavailable: "
)

// ErrNoAPIKey is returned by Lookup when the client has no key.
var ErrNoAPIKey = errors.New("search: no api key configured")

// DefaultDomains restricts results to sources with serious financial content.
var DefaultDomains = []string{"nerdwallet.com", "canada.ca", "investopedia.com", "reddit.com"}

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Client queries the search API.
type Client struct {
	apiKey     string
	endpoint   string
	http       *http.Client
	maxResults int
	depth      string
	domains    []string
}

// Option configures Client.
type Option func(*Client)

// WithEndpoint overrides the search URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithMaxResults caps the number of hits.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithIncludeDomains restricts results to the given domains. An empty
// list searches everywhere.
func WithIncludeDomains(domains ...string) Option {
	return func(c *Client) { c.domains = domains }
}

// New creates a client. An empty apiKey yields a client whose Search
// always returns Disabled.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		http:       &http.Client{Timeout: 15 * time.Second},
		maxResults: 3,
		depth:      "basic",
		domains:    DefaultDomains,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether the client has an API key.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Search returns the hits for query formatted one per line, or a literal
// describing why there are none.
func (c *Client) Search(ctx context.Context, query string) string {
	results, err := c.Lookup(ctx, query)
	switch {
	case errors.Is(err, ErrNoAPIKey):
		return Disabled
	case err != nil:
		return Unavailable(err)
	case len(results) == 0:
		return NoResults
	}
	return Format(results)
}

// Unavailable renders a failed search.
func Unavailable(err error) string {
	return unavailablePref + err.Error()
}

// IsDegraded reports whether text is one of the literals Search returns
// instead of results.
func IsDegraded(text string) bool {
	return text == Disabled || text == NoResults || strings.HasPrefix(text, unavailablePref)
}

// Format renders results as "- title: content (Source: url)" lines.
func Format(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("- %s: %s (Source: %s)", r.Title, r.Content, r.URL))
	}
	return strings.Join(lines, "\n")
}

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Lookup runs the query and returns the raw hits. HTTP failures are
// returned as *errors.HTTPError so they categorize by status code.
func (c *Client) Lookup(ctx context.Context, query string) ([]Result, error) {
	if !c.Enabled() {
		return nil, ErrNoAPIKey
	}

	body, err := json.Marshal(searchRequest{
		Query:          query,
		SearchDepth:    c.depth,
		MaxResults:     c.maxResults,
		IncludeDomains: c.domains,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, flowerrors.Transient(err, "search request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &flowerrors.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
			Endpoint:   c.endpoint,
		}
	}

	var parsed searchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &flowerrors.JSONParseError{Input: string(data), Message: err.Error()}
	}
	return parsed.Results, nil
}
