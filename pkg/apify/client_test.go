package apify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestStartRun(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/my-actor/runs", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var input RunInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, []string{"https://example.test/a"}, input.DirectURLs)
		assert.Equal(t, 1, input.ResultsLimit)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"run-1","status":"RUNNING","defaultDatasetId":"ds-1"}}`))
	})

	run, err := client.StartRun(context.Background(), "my-actor", RunInput{
		DirectURLs:   []string{"https://example.test/a"},
		ResultsLimit: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, "ds-1", run.DefaultDatasetID)
	assert.False(t, run.Finished())
}

func TestGetRun(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/actor-runs/run-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":"run-9","status":"SUCCEEDED","defaultDatasetId":"ds-9"}}`))
	})

	run, err := client.GetRun(context.Background(), "run-9")
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.True(t, run.Finished())
}

func TestDatasetItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/datasets/ds-1/items", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"inputUrl":"https://example.test/a","videoViewCount":123},
			{"url":"https://example.test/b","playCount":456},
			{"url":"https://example.test/c","error":"not_found"}
		]`))
	})

	items, err := client.DatasetItems(context.Background(), "ds-1")
	require.NoError(t, err)
	require.Len(t, items, 3)

	v, ok := items[0].ViewCount()
	require.True(t, ok)
	assert.Equal(t, int64(123), v)
	assert.Equal(t, "https://example.test/a", items[0].SourceURL())

	v, ok = items[1].ViewCount()
	require.True(t, ok)
	assert.Equal(t, int64(456), v)
	assert.Equal(t, "https://example.test/b", items[1].SourceURL())

	_, ok = items[2].ViewCount()
	assert.False(t, ok)
	assert.Equal(t, "not_found", items[2].Error)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	})

	_, err := client.GetRun(context.Background(), "run-1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid token")
}

func TestViewCount_FieldPriority(t *testing.T) {
	item := DatasetItem{
		VideoViewCount: int64p(10),
		PlayCount:      int64p(99),
	}
	v, ok := item.ViewCount()
	require.True(t, ok)
	assert.Equal(t, int64(10), v)
}

func int64p(v int64) *int64 { return &v }
