package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/models"
	"github.com/cardealsai/cardeals-backend/shared"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// BrowserRenderer renders a page in a real browser engine and returns
// the post-JavaScript HTML. Split out as an interface so tests can
// substitute a fake instead of launching a headless browser.
type BrowserRenderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// FetcherService retrieves dealer specials pages. Plain HTTP first; the
// headless browser only runs when HTTP comes back blocked, truncated, or
// failing twice, because a browser session costs seconds where a GET
// costs milliseconds.
type FetcherService struct {
	config     *config.FetcherConfig
	httpClient *http.Client
	renderer   BrowserRenderer
	metrics    *shared.ServiceMetrics
}

// NewFetcherService creates a fetcher with pooled HTTP transport and a
// chromedp-backed browser fallback.
func NewFetcherService(cfg *config.FetcherConfig, factory *shared.HTTPClientFactory) *FetcherService {
	if cfg == nil {
		cfg = config.DefaultFetcherConfig()
	}
	return &FetcherService{
		config:     cfg,
		httpClient: factory.CreateOptimizedHTTPClient(cfg.RequestTimeout),
		renderer:   &chromedpRenderer{config: cfg},
		metrics:    shared.NewServiceMetrics("FetcherService"),
	}
}

// NewFetcherServiceWithRenderer wires a caller-provided renderer, used
// by tests.
func NewFetcherServiceWithRenderer(cfg *config.FetcherConfig, factory *shared.HTTPClientFactory, renderer BrowserRenderer) *FetcherService {
	if cfg == nil {
		cfg = config.DefaultFetcherConfig()
	}
	return &FetcherService{
		config:     cfg,
		httpClient: factory.CreateOptimizedHTTPClient(cfg.RequestTimeout),
		renderer:   renderer,
		metrics:    shared.NewServiceMetrics("FetcherService"),
	}
}

// Metrics exposes the fetch counters for run summaries and the admin
// surface.
func (s *FetcherService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// FetchPage retrieves a page: one HTTP attempt, one delayed HTTP retry,
// then one browser render. A result below MinContentBytes counts as
// blocked even on status 200, since anti-bot vendors serve stub pages.
func (s *FetcherService) FetchPage(ctx context.Context, url string) (*models.RawFetchResult, error) {
	started := time.Now()
	result, err := s.fetchPage(ctx, url)
	s.metrics.RecordRequest(err == nil, time.Since(started))
	if err == nil {
		s.metrics.IncrementCounter(result.Strategy + "_success")
	}
	return result, err
}

func (s *FetcherService) fetchPage(ctx context.Context, url string) (*models.RawFetchResult, error) {
	result, httpErr := s.fetchHTTP(ctx, url)
	if httpErr != nil {
		s.metrics.IncrementCounter("http_retries")
		logrus.WithFields(logrus.Fields{
			"url":   url,
			"error": httpErr.Error(),
		}).Warn("HTTP fetch attempt failed, retrying once")

		select {
		case <-time.After(s.config.RetryDelay):
		case <-ctx.Done():
			return nil, shared.NewFetchError("fetch_page", "fetch canceled during retry delay", ctx.Err())
		}

		result, httpErr = s.fetchHTTP(ctx, url)
	}

	if httpErr == nil {
		return result, nil
	}

	logrus.WithFields(logrus.Fields{
		"url":   url,
		"error": httpErr.Error(),
	}).Info("Falling back to browser fetch")
	s.metrics.IncrementCounter("browser_fallbacks")

	html, browserErr := s.renderer.Render(ctx, url)
	if browserErr != nil {
		return nil, shared.NewFetchError("fetch_page",
			fmt.Sprintf("both strategies failed for %s: http=%v browser=%v", url, httpErr, browserErr), browserErr)
	}

	if len(html) < s.config.MinContentBytes {
		return nil, shared.NewFetchError("fetch_page",
			fmt.Sprintf("browser fetch returned %d bytes for %s, below minimum %d", len(html), url, s.config.MinContentBytes), nil)
	}

	logrus.WithFields(logrus.Fields{
		"url":   url,
		"bytes": len(html),
	}).Info("Browser fetch succeeded")

	return &models.RawFetchResult{
		HTML:       html,
		Strategy:   "browser",
		StatusCode: http.StatusOK,
		ByteLength: len(html),
		FetchedAt:  time.Now(),
	}, nil
}

// fetchHTTP runs one plain GET with browser-like headers. Status 403 and
// undersized bodies are soft failures that trigger the fallback chain.
func (s *FetcherService) fetchHTTP(ctx context.Context, url string) (*models.RawFetchResult, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	shared.SetBrowserLikeHeaders(request, s.config.UserAgent)

	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		io.Copy(io.Discard, response.Body)
		return nil, fmt.Errorf("status %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	if len(body) < s.config.MinContentBytes {
		return nil, fmt.Errorf("body too small: %d bytes", len(body))
	}

	logrus.WithFields(logrus.Fields{
		"url":   url,
		"bytes": len(body),
	}).Debug("HTTP fetch succeeded")

	return &models.RawFetchResult{
		HTML:       string(body),
		Strategy:   "http",
		StatusCode: response.StatusCode,
		ByteLength: len(body),
		FetchedAt:  time.Now(),
	}, nil
}

// chromedpRenderer is the production BrowserRenderer. Every session gets
// a fresh browser context and a guaranteed teardown; a leaked browser
// process outlives the ingestion run otherwise.
type chromedpRenderer struct {
	config *config.FetcherConfig
}

func (r *chromedpRenderer) Render(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(r.config.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, r.config.BrowserTimeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(3*time.Second),
		// Scroll so lazy-loaded offer carousels render their slides
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight/2)`, nil),
		chromedp.Sleep(1*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser render failed: %w", err)
	}

	return html, nil
}
