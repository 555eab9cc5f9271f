package sleuth

import (
	"context"
	"time"
)

// FetchStrategy names which fetch path produced a result.
type FetchStrategy string

const (
	// StrategySimple is the lightweight HTTP fetch: bounded timeout,
	// rotated headers, no script execution.
	StrategySimple FetchStrategy = "simple"
	// StrategyBrowser is the full headless-browser fetch: scripts run,
	// the DOM is serialized after the page settles.
	StrategyBrowser FetchStrategy = "browser"
)

// FetchResult is the raw document a fetch attempt produced. The same HTML
// must be seen by both the discovery step and the verification step, so the
// pipeline holds onto it for the whole run and never re-fetches in between.
type FetchResult struct {
	HTML       string
	FinalURL   string // post-redirect
	StatusCode int
	Strategy   FetchStrategy
	Duration   time.Duration
	// IsFeed is set when the response body looks like an RSS/Atom feed
	// rather than an HTML page; the pipeline then resolves the feed to an
	// article link before discovery.
	IsFeed bool
}

// Fetcher retrieves a page. The production implementation is the escalating
// waterfall in the fetch package; tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Candidates holds one field's tiered selector proposals as returned by
// discovery. A nil tier is the explicit "not applicable" marker.
type Candidates struct {
	Primary  *string
	Fallback *string
	Tertiary *string
}

// CandidateSet maps each recognized field name to its proposed candidates.
// The discovery agent guarantees the key set is exactly Fields().
type CandidateSet map[string]Candidates

// TokenUsage is the model cost of one discovery call, reported to the
// caller so the usage store can account for it. The agent itself keeps no
// counters.
type TokenUsage struct {
	Prompt     int
	Completion int
}

// Discoverer proposes tiered selector candidates for a page. The production
// implementation is the language-model agent in the discover package.
type Discoverer interface {
	Discover(ctx context.Context, url, cleanedHTML string) (CandidateSet, TokenUsage, error)
}

// BuildSelectorSet creates an unverified SelectorSet from discovery output.
// Candidate selector strings are carried over verbatim; the verifier fills
// in working priorities afterwards.
func BuildSelectorSet(domain, sourceURL string, candidates CandidateSet) *SelectorSet {
	set := NewSelectorSet(domain, sourceURL)
	for field, c := range candidates {
		fs, ok := set.Selectors[field]
		if !ok {
			continue // unknown fields were rejected at the discovery boundary
		}
		fs.Primary = c.Primary
		fs.Fallback = c.Fallback
		fs.Tertiary = c.Tertiary
	}
	return set
}
