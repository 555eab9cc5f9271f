package fetch

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minContentChars is the visible-text threshold below which a page without
// an article-root container is considered insufficient and worth escalating
// to a browser fetch.
const minContentChars = 1500

// minRenderedChars is the near-empty-body threshold for detecting
// client-side rendering: a framework root plus less text than this means
// the real content only exists after script execution.
const minRenderedChars = 100

// frameworkMarkers are signatures of client-side rendering frameworks. On
// their own they prove nothing; combined with a near-empty body they mean
// the simple fetch saw an application shell, not the article.
var frameworkMarkers = []string{
	"data-reactroot",
	"id=\"root\"",
	"id=\"app\"",
	"__next",
	"_next/static",
	"ng-app",
	"ng-version",
	"v-if=",
	"__svelte",
}

// feedMarkers identify RSS/Atom documents. Feed declarations sit at the
// top, so only the head of the body is checked.
var feedMarkers = []string{
	"<?xml",
	"<rss",
	"<feed",
	"<channel>",
	"xmlns=\"http://www.w3.org/2005/atom\"",
}

// QualitySignal is derived from a fetch result and used only to decide
// whether to escalate to a browser fetch. It is never persisted.
type QualitySignal struct {
	HasArticleContainer bool
	TextChars           int
	LooksClientRendered bool
}

// Sufficient reports whether the fetched document plausibly contains the
// article: either a recognizable article-root container, or enough visible
// text that selector discovery has something to work with.
func (q QualitySignal) Sufficient() bool {
	if q.LooksClientRendered {
		return false
	}
	return q.HasArticleContainer || q.TextChars >= minContentChars
}

// AssessQuality computes the quality signal for a fetched document.
func AssessQuality(html string) QualitySignal {
	var signal QualitySignal

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return signal
	}

	signal.HasArticleContainer = doc.Find("article, main, [role=\"main\"]").Length() > 0

	body := doc.Find("body")
	body.Find("script, style, noscript").Remove()
	signal.TextChars = len(strings.TrimSpace(body.Text()))

	if signal.TextChars < minRenderedChars {
		lower := strings.ToLower(html)
		for _, marker := range frameworkMarkers {
			if strings.Contains(lower, marker) {
				signal.LooksClientRendered = true
				break
			}
		}
		// An explicit noscript warning is as good as a framework marker.
		if !signal.LooksClientRendered &&
			strings.Contains(lower, "<noscript>") &&
			(strings.Contains(lower, "enable javascript") || strings.Contains(lower, "requires javascript")) {
			signal.LooksClientRendered = true
		}
	}

	return signal
}

// looksLikeFeed reports whether the body is an RSS or Atom document.
func looksLikeFeed(body string) bool {
	head := strings.ToLower(body)
	if len(head) > 512 {
		head = head[:512]
	}
	for _, marker := range feedMarkers {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

// blockStatusCodes block immediately regardless of body content.
var blockStatusCodes = map[int]bool{403: true, 429: true, 503: true}

// strictBlockMarkers only count on 200 responses, where false positives are
// costly; each is specific enough to indicate an actual challenge page.
var strictBlockMarkers = map[string]string{
	"challenge-form":               "cloudflare challenge",
	"cf-captcha":                   "cloudflare captcha",
	"access denied</title>":        "access denied page",
	"rate limit exceeded":          "rate limit",
	"please verify you are human":  "human verification",
	"enable javascript to continue": "javascript block",
}

// detectBlock checks a response for bot-detection markers. Returns the
// indicators found; an empty slice means no block.
func detectBlock(html string, statusCode int) []string {
	if blockStatusCodes[statusCode] {
		return []string{"blocked status"}
	}
	if statusCode != 200 {
		return nil
	}

	// Block messages appear near the top of the page.
	head := strings.ToLower(html)
	if len(head) > 2000 {
		head = head[:2000]
	}

	var indicators []string
	for marker, reason := range strictBlockMarkers {
		if strings.Contains(head, marker) {
			indicators = append(indicators, reason)
		}
	}
	return indicators
}
