package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	html  string
	err   error
	calls int32
}

func (r *fakeRenderer) Render(ctx context.Context, url string) (string, error) {
	atomic.AddInt32(&r.calls, 1)
	return r.html, r.err
}

func testFetcherConfig() *config.FetcherConfig {
	cfg := config.DefaultFetcherConfig()
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func newTestFetcher(cfg *config.FetcherConfig, renderer BrowserRenderer) *FetcherService {
	factory := shared.NewHTTPClientFactory(cfg.RequestTimeout)
	return NewFetcherServiceWithRenderer(cfg, factory, renderer)
}

func largeBody() string {
	return "<html><body>" + strings.Repeat("<div>lease specials</div>", 100) + "</body></html>"
}

func TestFetchPageUsesHTTPWhenHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Write([]byte(largeBody()))
	}))
	defer server.Close()

	renderer := &fakeRenderer{}
	fetcher := newTestFetcher(testFetcherConfig(), renderer)

	result, err := fetcher.FetchPage(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "http", result.Strategy)
	assert.Equal(t, len(largeBody()), result.ByteLength)
	assert.Equal(t, int32(0), atomic.LoadInt32(&renderer.calls), "healthy HTTP never launches a browser")
}

func TestFetchPageRetriesOnceBeforeFallback(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(largeBody()))
	}))
	defer server.Close()

	renderer := &fakeRenderer{}
	fetcher := newTestFetcher(testFetcherConfig(), renderer)

	result, err := fetcher.FetchPage(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "http", result.Strategy)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	assert.Equal(t, int32(0), atomic.LoadInt32(&renderer.calls))
}

func TestFetchPageFallsBackToBrowserOn403(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	renderer := &fakeRenderer{html: largeBody()}
	fetcher := newTestFetcher(testFetcherConfig(), renderer)

	result, err := fetcher.FetchPage(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "browser", result.Strategy)
	assert.Equal(t, int32(1), atomic.LoadInt32(&renderer.calls), "browser runs exactly once")

	assert.Equal(t, int64(1), fetcher.Metrics().Counter("browser_fallbacks"))
	assert.Equal(t, int64(1), fetcher.Metrics().Counter("browser_success"))
	assert.Equal(t, int64(1), fetcher.Metrics().Snapshot().SuccessfulRequests)
}

func TestFetchPageTreatsStubBodyAsBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>blocked</html>"))
	}))
	defer server.Close()

	renderer := &fakeRenderer{html: largeBody()}
	fetcher := newTestFetcher(testFetcherConfig(), renderer)

	result, err := fetcher.FetchPage(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "browser", result.Strategy, "a 200 stub below the size floor is a block")
}

func TestFetchPageFailsWhenBothStrategiesFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	renderer := &fakeRenderer{err: errors.New("browser crashed")}
	fetcher := newTestFetcher(testFetcherConfig(), renderer)

	_, err := fetcher.FetchPage(context.Background(), server.URL)
	require.Error(t, err)

	var serviceErr *shared.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.True(t, serviceErr.IsRetryable(), "fetch failures retry on the next run")
}

func TestFetchPageRejectsUndersizedBrowserResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	renderer := &fakeRenderer{html: "<html>tiny</html>"}
	fetcher := newTestFetcher(testFetcherConfig(), renderer)

	_, err := fetcher.FetchPage(context.Background(), server.URL)
	assert.Error(t, err)
}
