// Package search defines the web-search backend contract and an HTTP
// implementation targeting a SearXNG-compatible JSON API.
//
// Search is strictly best-effort for the assistant: every error path here is
// swallowed by the augmenter and the turn proceeds unaugmented, so the
// backend keeps its surface small — one query in, ranked snippets out.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Result is one ranked search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Backend is the abstraction over any web-search service.
type Backend interface {
	// Search returns up to maxResults ranked hits for query. An empty result
	// slice with a nil error is a valid "nothing found" outcome.
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Compile-time assertion that Client satisfies Backend.
var _ Backend = (*Client)(nil)

// Client implements Backend against a SearXNG-compatible instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Client.
type Option func(*Client)

// WithTimeout bounds each search request. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a Client for the search instance at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("search: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// searxResponse is the subset of the SearXNG JSON format the client reads.
type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements Backend.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search: empty query")
	}

	u, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("search: parse URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	if maxResults > 0 {
		q.Set("max_results", strconv.Itoa(maxResults))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: server returned %s", resp.Status)
	}

	var body searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	results := make([]Result, 0, len(body.Results))
	for _, r := range body.Results {
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}

// Mock is an in-memory Backend test double.
type Mock struct {
	Results []Result
	Err     error
	Queries []string
}

var _ Backend = (*Mock)(nil)

// Search implements Backend.
func (m *Mock) Search(_ context.Context, query string, maxResults int) ([]Result, error) {
	m.Queries = append(m.Queries, query)
	if m.Err != nil {
		return nil, m.Err
	}
	if maxResults > 0 && len(m.Results) > maxResults {
		return m.Results[:maxResults], nil
	}
	return m.Results, nil
}
