// Package apify is a minimal client for the Apify actor API, covering
// the run-poll-dataset cycle used by the bulk metrics provider.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Apify v2 API.
const defaultBaseURL = "https://api.apify.com"

// Run statuses reported by GET /v2/actor-runs/{id}.
const (
	RunStatusReady     = "READY"
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
	RunStatusAborted   = "ABORTED"
	RunStatusTimedOut  = "TIMED-OUT"
)

// Client defines the Apify operations used by the bulk provider.
type Client interface {
	StartRun(ctx context.Context, actorID string, input RunInput) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	DatasetItems(ctx context.Context, datasetID string) ([]DatasetItem, error)
}

// RunInput is the actor input for a scrape run over a list of post URLs.
type RunInput struct {
	DirectURLs   []string `json:"directUrls"`
	ResultsLimit int      `json:"resultsLimit,omitempty"`
}

// Run describes an actor run and the dataset collecting its output.
type Run struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	switch r.Status {
	case RunStatusSucceeded, RunStatusFailed, RunStatusAborted, RunStatusTimedOut:
		return true
	}
	return false
}

// runEnvelope is the {"data": ...} wrapper Apify puts around run objects.
type runEnvelope struct {
	Data Run `json:"data"`
}

// DatasetItem is one scraped post. Different actors expose the view
// count under different field names, so all known variants are mapped.
type DatasetItem struct {
	InputURL       string `json:"inputUrl"`
	URL            string `json:"url"`
	VideoViewCount *int64 `json:"videoViewCount"`
	VideoPlayCount *int64 `json:"videoPlayCount"`
	ViewsCount     *int64 `json:"viewsCount"`
	PlayCount      *int64 `json:"playCount"`
	Error          string `json:"error"`
}

// ViewCount returns the first populated view-count field.
func (it *DatasetItem) ViewCount() (int64, bool) {
	for _, v := range []*int64{it.VideoViewCount, it.VideoPlayCount, it.ViewsCount, it.PlayCount} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// SourceURL returns the URL identifying which input the item belongs to.
func (it *DatasetItem) SourceURL() string {
	if it.InputURL != "" {
		return it.InputURL
	}
	return it.URL
}

// APIError is returned when Apify responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
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
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Apify client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) StartRun(ctx context.Context, actorID string, input RunInput) (*Run, error) {
	var resp runEnvelope
	path := fmt.Sprintf("/v2/acts/%s/runs", url.PathEscape(actorID))
	if err := c.post(ctx, path, input, &resp); err != nil {
		return nil, eris.Wrap(err, "apify: start run")
	}
	return &resp.Data, nil
}

func (c *httpClient) GetRun(ctx context.Context, runID string) (*Run, error) {
	var resp runEnvelope
	path := fmt.Sprintf("/v2/actor-runs/%s", url.PathEscape(runID))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: get run %s", runID))
	}
	return &resp.Data, nil
}

func (c *httpClient) DatasetItems(ctx context.Context, datasetID string) ([]DatasetItem, error) {
	var items []DatasetItem
	path := fmt.Sprintf("/v2/datasets/%s/items", url.PathEscape(datasetID))
	if err := c.get(ctx, path, &items); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: dataset items %s", datasetID))
	}
	return items, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return eris.Wrap(err, "decode response")
		}
	}
	return nil
}
