package fetch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/sleuth"
)

// scriptedFetcher plays one canned response per strategy slot.
type scriptedFetcher struct {
	result *sleuth.FetchResult
	err    error
	calls  atomic.Int64
}

func (s *scriptedFetcher) Fetch(_ context.Context, _ string) (*sleuth.FetchResult, error) {
	s.calls.Add(1)
	return s.result, s.err
}

func richPage(strategy sleuth.FetchStrategy) *sleuth.FetchResult {
	var b strings.Builder
	b.WriteString("<html><body><article><h1>Title</h1>")
	for b.Len() < minContentChars+500 {
		b.WriteString("<p>Substantial article paragraph content for quality checks.</p>")
	}
	b.WriteString("</article></body></html>")
	return &sleuth.FetchResult{HTML: b.String(), FinalURL: "https://example.com/x", StatusCode: 200, Strategy: strategy}
}

// TestWaterfall_SimpleSufficient verifies no escalation when the cheap fetch
// is good enough.
func TestWaterfall_SimpleSufficient(t *testing.T) {
	simple := &scriptedFetcher{result: richPage(sleuth.StrategySimple)}
	browser := &scriptedFetcher{result: richPage(sleuth.StrategyBrowser)}
	w := NewWaterfall(simple, browser, nil)

	res, err := w.Fetch(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, sleuth.StrategySimple, res.Strategy)
	assert.Equal(t, int64(0), browser.calls.Load())
}

// TestWaterfall_EscalatesOnBlock verifies a blocked simple fetch falls
// through to the browser.
func TestWaterfall_EscalatesOnBlock(t *testing.T) {
	simple := &scriptedFetcher{err: &sleuth.FetchError{Kind: sleuth.FetchBlocked, URL: "https://example.com/x", StatusCode: 403}}
	browser := &scriptedFetcher{result: richPage(sleuth.StrategyBrowser)}
	w := NewWaterfall(simple, browser, nil)

	res, err := w.Fetch(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, sleuth.StrategyBrowser, res.Strategy)
	assert.Equal(t, int64(1), simple.calls.Load())
	assert.Equal(t, int64(1), browser.calls.Load())
}

// TestWaterfall_EscalatesOnThinContent verifies an empty application shell
// escalates even though the fetch itself succeeded.
func TestWaterfall_EscalatesOnThinContent(t *testing.T) {
	shell := &sleuth.FetchResult{
		HTML:       `<html><body><div id="root"></div></body></html>`,
		FinalURL:   "https://example.com/x",
		StatusCode: 200,
		Strategy:   sleuth.StrategySimple,
	}
	simple := &scriptedFetcher{result: shell}
	browser := &scriptedFetcher{result: richPage(sleuth.StrategyBrowser)}
	w := NewWaterfall(simple, browser, nil)

	res, err := w.Fetch(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, sleuth.StrategyBrowser, res.Strategy)
}

// TestWaterfall_HardErrorStops verifies a non-block failure is terminal; a
// browser cannot fix a 404.
func TestWaterfall_HardErrorStops(t *testing.T) {
	simple := &scriptedFetcher{err: &sleuth.FetchError{Kind: sleuth.FetchBadStatus, URL: "https://example.com/x", StatusCode: 404}}
	browser := &scriptedFetcher{result: richPage(sleuth.StrategyBrowser)}
	w := NewWaterfall(simple, browser, nil)

	_, err := w.Fetch(context.Background(), "https://example.com/x")
	require.Error(t, err)
	assert.Equal(t, int64(0), browser.calls.Load())

	var fe *sleuth.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, sleuth.FetchBadStatus, fe.Kind)
}

// TestWaterfall_AllStrategiesInsufficient verifies exhaustion surfaces as
// unfetchable.
func TestWaterfall_AllStrategiesInsufficient(t *testing.T) {
	shell := &sleuth.FetchResult{
		HTML:       `<html><body><div id="root"></div></body></html>`,
		FinalURL:   "https://example.com/x",
		StatusCode: 200,
		Strategy:   sleuth.StrategySimple,
	}
	simple := &scriptedFetcher{result: shell}
	browser := &scriptedFetcher{result: shell}
	w := NewWaterfall(simple, browser, nil)

	_, err := w.Fetch(context.Background(), "https://example.com/x")
	require.Error(t, err)

	var fe *sleuth.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, sleuth.FetchUnfetchable, fe.Kind)
}

// TestWaterfall_NilBrowserDisablesEscalation verifies a blocked simple fetch
// with no browser configured fails outright.
func TestWaterfall_NilBrowserDisablesEscalation(t *testing.T) {
	simple := &scriptedFetcher{err: &sleuth.FetchError{Kind: sleuth.FetchBlocked, URL: "https://example.com/x", StatusCode: 403}}
	w := NewWaterfall(simple, nil, nil)

	_, err := w.Fetch(context.Background(), "https://example.com/x")
	require.Error(t, err)

	var fe *sleuth.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, sleuth.FetchBlocked, fe.Kind)
}

// TestWaterfall_FeedShortCircuits verifies feed responses skip the quality
// gate entirely.
func TestWaterfall_FeedShortCircuits(t *testing.T) {
	feed := &sleuth.FetchResult{
		HTML:       `<?xml version="1.0"?><rss version="2.0"><channel></channel></rss>`,
		FinalURL:   "https://example.com/rss",
		StatusCode: 200,
		Strategy:   sleuth.StrategySimple,
		IsFeed:     true,
	}
	simple := &scriptedFetcher{result: feed}
	browser := &scriptedFetcher{result: richPage(sleuth.StrategyBrowser)}
	w := NewWaterfall(simple, browser, nil)

	res, err := w.Fetch(context.Background(), "https://example.com/rss")
	require.NoError(t, err)
	assert.True(t, res.IsFeed)
	assert.Equal(t, int64(0), browser.calls.Load())
}

// TestWaterfall_ContextCancellation verifies a cancelled context stops the
// strategy loop.
func TestWaterfall_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	simple := &scriptedFetcher{result: richPage(sleuth.StrategySimple)}
	w := NewWaterfall(simple, nil, nil)

	_, err := w.Fetch(ctx, "https://example.com/x")
	assert.ErrorIs(t, err, context.Canceled)
}
