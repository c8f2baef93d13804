package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masahif/rankcrawler/internal/crawler"
	"github.com/masahif/rankcrawler/internal/metrics"
	"github.com/masahif/rankcrawler/internal/storage"
)

type fakeEngine struct {
	metrics   *metrics.Collector
	results   []storage.SearchResult
	err       error
	lastQuery string
	lastLimit int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{metrics: metrics.New()}
}

func (f *fakeEngine) Status() crawler.Status {
	return crawler.Status{State: crawler.StateRunning, FrontierSize: 7, MaxPages: 100}
}

func (f *fakeEngine) Metrics() *metrics.Collector { return f.metrics }

func (f *fakeEngine) Search(_ context.Context, query string, limit int) ([]storage.SearchResult, error) {
	f.lastQuery, f.lastLimit = query, limit
	return f.results, f.err
}

func (f *fakeEngine) TopPages(_ context.Context, limit int) ([]storage.Page, error) {
	f.lastLimit = limit
	return []storage.Page{{URL: "http://example.com/", RelevanceScore: 0.9}}, f.err
}

func newTestServer(engine Engine) *Server {
	return NewServer(engine, "1.2.3", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := do(t, newTestServer(newFakeEngine()), "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "rankcrawler", body["service"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatus(t *testing.T) {
	rec, body := do(t, newTestServer(newFakeEngine()), "/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["state"])
	assert.EqualValues(t, 7, body["frontier_size"])
}

func TestMetricsJSON(t *testing.T) {
	engine := newFakeEngine()
	engine.metrics.RecordPage("example.com", 200, 100, time.Millisecond)
	engine.metrics.RecordError("timeout")

	rec, body := do(t, newTestServer(engine), "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["pages_processed"])
	assert.EqualValues(t, 1, body["errors"])
	assert.InDelta(t, 50.0, body["error_rate"], 1e-9)
}

func TestMetricsPrometheus(t *testing.T) {
	engine := newFakeEngine()
	engine.metrics.RecordPage("example.com", 200, 100, time.Millisecond)

	rec, _ := do(t, newTestServer(engine), "/metrics/prometheus")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `crawler_pages_total{status="200"} 1`)
}

func TestSearch(t *testing.T) {
	engine := newFakeEngine()
	engine.results = []storage.SearchResult{
		{Page: storage.Page{URL: "http://example.com/go", Title: "Go"}, Score: 0.5, MatchedTerms: []string{"golang"}},
	}
	s := newTestServer(engine)

	rec, body := do(t, s, "/search?q=golang&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "golang", body["query"])
	assert.EqualValues(t, 1, body["count"])
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "http://example.com/go", results[0].(map[string]any)["url"])
	assert.Equal(t, 5, engine.lastLimit)
}

func TestSearchLimitClamping(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"/search?q=x", 10},
		{"/search?q=x&limit=abc", 10},
		{"/search?q=x&limit=0", 1},
		{"/search?q=x&limit=-4", 1},
		{"/search?q=x&limit=1000", 100},
		{"/search?q=x&limit=42", 42},
	}
	for _, tt := range tests {
		engine := newFakeEngine()
		rec, _ := do(t, newTestServer(engine), tt.query)
		require.Equal(t, http.StatusOK, rec.Code, tt.query)
		assert.Equal(t, tt.want, engine.lastLimit, tt.query)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	for _, target := range []string{"/search", "/search?q=", "/search?q=%20%20"} {
		rec, body := do(t, newTestServer(newFakeEngine()), target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "Missing query parameter 'q'", body["error"])
	}
}

func TestSearchError(t *testing.T) {
	engine := newFakeEngine()
	engine.err = errors.New("database is locked")

	rec, body := do(t, newTestServer(engine), "/search?q=golang")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "search failed", body["error"])
}

func TestTopPages(t *testing.T) {
	engine := newFakeEngine()
	rec, body := do(t, newTestServer(engine), "/pages/top?limit=3")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, 3, engine.lastLimit)
}

func TestUnknownRoute(t *testing.T) {
	rec, _ := do(t, newTestServer(newFakeEngine()), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := newTestServer(newFakeEngine())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
