package fetch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/pevans/sleuth"
)

// requestIdleWindow is how long the network must stay quiet (ignoring
// images and media) before a rendered page is considered settled.
const requestIdleWindow = 500 * time.Millisecond

// BrowserFetcher is the escalation strategy: a headless Chromium instance
// renders the page, executes its scripts, waits for the network to go
// quiet, and serializes the resulting DOM. Slow, so the waterfall only
// reaches for it when the simple fetch came back blocked or empty.
type BrowserFetcher struct {
	timeout  time.Duration
	headless bool
	logger   *zap.Logger
}

// NewBrowserFetcher builds the browser fetcher. The timeout should be
// generous relative to the simple fetch; rendering needs time to settle.
func NewBrowserFetcher(timeout time.Duration, logger *zap.Logger) *BrowserFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserFetcher{timeout: timeout, headless: true, logger: logger}
}

// Fetch renders the page in a fresh browser instance. Each call launches
// and tears down its own browser: slower than pooling, but leak-proof for
// a single-operator tool.
func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*sleuth.FetchResult, error) {
	start := time.Now()

	l := launcher.New().Headless(f.headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Timeout(f.timeout).Navigate(rawURL); err != nil {
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}
	if err := page.Timeout(f.timeout).WaitLoad(); err != nil {
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}

	// Let JS-driven pages finish populating before serializing; images and
	// media never stop loading on news sites, so they don't count.
	wait := page.Timeout(f.timeout).WaitRequestIdle(requestIdleWindow, nil, nil,
		[]proto.NetworkResourceType{proto.NetworkResourceTypeImage, proto.NetworkResourceTypeMedia})
	wait()

	html, err := page.HTML()
	if err != nil {
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnreachable, URL: rawURL, Err: err}
	}

	if indicators := detectBlock(html, 200); len(indicators) > 0 {
		return nil, &sleuth.FetchError{
			Kind: sleuth.FetchBlocked,
			URL:  rawURL,
			Err:  errors.New(strings.Join(indicators, ", ")),
		}
	}

	finalURL := rawURL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	f.logger.Debug("browser fetch complete",
		zap.String("url", rawURL),
		zap.Duration("duration", time.Since(start)))

	return &sleuth.FetchResult{
		HTML:       html,
		FinalURL:   finalURL,
		StatusCode: 200,
		Strategy:   sleuth.StrategyBrowser,
		Duration:   time.Since(start),
		IsFeed:     looksLikeFeed(html),
	}, nil
}
