package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pevans/sleuth"
)

// maxBodyBytes caps how much of a response is read. News pages far beyond
// this are either broken or not articles.
const maxBodyBytes = 10 << 20 // 10 MiB

// SimpleFetcher is the lightweight strategy: a plain HTTP GET with rotated
// browser-like headers, a bounded timeout and no script execution. It
// performs no caching; politeness pacing is the only state it carries.
type SimpleFetcher struct {
	client     *http.Client
	timeout    time.Duration
	politeness *Politeness
	logger     *zap.Logger
}

// NewSimpleFetcher builds the lightweight fetcher. politeness may be nil
// when pacing is handled elsewhere (tests, single-URL runs).
func NewSimpleFetcher(timeout time.Duration, politeness *Politeness, logger *zap.Logger) *SimpleFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimpleFetcher{
		client:     &http.Client{}, // per-request timeout via context
		timeout:    timeout,
		politeness: politeness,
		logger:     logger,
	}
}

// Fetch retrieves the page over plain HTTP. Bot-detection markers and
// blocking status codes surface as FetchError{Kind: FetchBlocked}, which
// the waterfall treats as a signal to escalate, not a terminal failure.
func (f *SimpleFetcher) Fetch(ctx context.Context, rawURL string) (*sleuth.FetchResult, error) {
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}

	if f.politeness != nil {
		if err := f.politeness.Wait(ctx, u.Hostname()); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}
	for k, v := range randomHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Surface the caller's cancellation as-is so it propagates.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}
	html := string(body)

	if indicators := detectBlock(html, resp.StatusCode); len(indicators) > 0 {
		f.logger.Debug("bot detection triggered",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
			zap.Strings("indicators", indicators))
		return nil, &sleuth.FetchError{
			Kind:       sleuth.FetchBlocked,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.Join(indicators, ", ")),
		}
	}

	if resp.StatusCode >= 400 {
		kind := sleuth.FetchBadStatus
		if resp.StatusCode >= 500 {
			// Server errors are transient; let the retry policy have them.
			kind = sleuth.FetchUnreachable
		}
		return nil, &sleuth.FetchError{
			Kind:       kind,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return &sleuth.FetchResult{
		HTML:       html,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Strategy:   sleuth.StrategySimple,
		Duration:   time.Since(start),
		IsFeed:     looksLikeFeed(html),
	}, nil
}
