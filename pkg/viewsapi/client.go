// Package viewsapi is a client for per-URL view-count lookup services.
// These services proxy the platform's internal endpoints, so the
// response shape varies: the metric can surface under several key paths
// depending on which upstream endpoint answered.
package viewsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client looks up the view count for a single post URL.
type Client interface {
	Lookup(ctx context.Context, postURL string) (*LookupResponse, error)
}

// NotFoundError is returned when the service reports the post does not
// exist or is not accessible. Callers may retry an alternative URL form.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("viewsapi: post not found: %s", e.URL)
}

// APIError is returned for any other non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("viewsapi: HTTP %d: %s", e.StatusCode, e.Body)
}

// viewPaths are the known locations of the view count in the response,
// most specific first.
var viewPaths = [][]string{
	{"data", "video_view_count"},
	{"data", "video_play_count"},
	{"data", "play_count"},
	{"graphql", "shortcode_media", "video_view_count"},
	{"video_view_count"},
	{"view_count"},
}

// LookupResponse is the decoded lookup payload.
type LookupResponse struct {
	raw map[string]any
}

// NewLookupResponse wraps an already-decoded payload. Intended for
// Client test doubles.
func NewLookupResponse(raw map[string]any) *LookupResponse {
	return &LookupResponse{raw: raw}
}

// Views searches the known key paths and returns the first view count
// present.
func (r *LookupResponse) Views() (int64, bool) {
	for _, path := range viewPaths {
		if v, ok := dig(r.raw, path); ok {
			return v, true
		}
	}
	return 0, false
}

// dig walks nested objects along path and coerces the leaf to int64.
// JSON numbers decode as float64.
func dig(m map[string]any, path []string) (int64, bool) {
	cur := any(m)
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return 0, false
		}
		cur, ok = obj[key]
		if !ok {
			return 0, false
		}
	}
	switch v := cur.(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the service base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
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

// NewClient creates a lookup client. baseURL selection is left to
// configuration since these services are interchangeable.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey: apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, postURL string) (*LookupResponse, error) {
	endpoint := fmt.Sprintf("%s/v1/post?url=%s", c.baseURL, url.QueryEscape(postURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "viewsapi: create request")
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "viewsapi: execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "viewsapi: read response body")
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, &NotFoundError{URL: postURL}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "viewsapi: decode response")
	}
	return &LookupResponse{raw: raw}, nil
}
