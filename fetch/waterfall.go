package fetch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pevans/sleuth"
)

// Waterfall is the escalating strategy selector: try the cheap fetch first,
// check content quality, and fall through to the next strategy when the
// result is blocked or insufficient. Strategies are an ordered list with a
// quality predicate between them, not a hierarchy; each entry is a plain
// Fetcher.
type Waterfall struct {
	strategies []sleuth.Fetcher
	logger     *zap.Logger
}

// NewWaterfall builds the standard two-step waterfall: simple HTTP, then
// headless browser. A nil browser disables escalation (useful where no
// Chromium is available); insufficient simple results then fail outright.
func NewWaterfall(simple, browser sleuth.Fetcher, logger *zap.Logger) *Waterfall {
	if logger == nil {
		logger = zap.NewNop()
	}
	strategies := []sleuth.Fetcher{simple}
	if browser != nil {
		strategies = append(strategies, browser)
	}
	return &Waterfall{strategies: strategies, logger: logger}
}

// Fetch runs the strategy list in order and returns the first sufficient
// result. A blocked or insufficient result escalates; any other error stops
// the waterfall immediately (a non-retryable HTTP status will not be fixed
// by a browser). Feed responses short-circuit: quality heuristics are for
// HTML, and the pipeline handles feeds itself.
func (w *Waterfall) Fetch(ctx context.Context, url string) (*sleuth.FetchResult, error) {
	var lastErr error

	for i, strategy := range w.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := strategy.Fetch(ctx, url)
		if err != nil {
			var fe *sleuth.FetchError
			if errors.As(err, &fe) && fe.Kind == sleuth.FetchBlocked && i < len(w.strategies)-1 {
				w.logger.Info("fetch blocked, escalating",
					zap.String("url", url),
					zap.String("error", fe.Error()))
				lastErr = err
				continue
			}
			return nil, err
		}

		if result.IsFeed {
			return result, nil
		}

		quality := AssessQuality(result.HTML)
		if quality.Sufficient() {
			return result, nil
		}

		w.logger.Info("content insufficient",
			zap.String("url", url),
			zap.String("strategy", string(result.Strategy)),
			zap.Int("text_chars", quality.TextChars),
			zap.Bool("client_rendered", quality.LooksClientRendered),
			zap.Bool("escalating", i < len(w.strategies)-1))
		lastErr = &sleuth.FetchError{Kind: sleuth.FetchUnfetchable, URL: url, StatusCode: result.StatusCode}
	}

	if lastErr != nil {
		var fe *sleuth.FetchError
		if errors.As(lastErr, &fe) && fe.Kind == sleuth.FetchUnfetchable {
			return nil, lastErr
		}
		return nil, &sleuth.FetchError{Kind: sleuth.FetchUnfetchable, URL: url, Err: lastErr}
	}
	return nil, &sleuth.FetchError{Kind: sleuth.FetchUnfetchable, URL: url}
}
