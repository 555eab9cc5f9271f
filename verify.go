package sleuth

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// minHeadlineChars rejects headline matches that are too short to be a real
// title; these are almost always menu items or section labels.
const minHeadlineChars = 15

// navPatterns mark headline matches that actually landed on navigation.
var navPatterns = []string{
	"select region", "menu", "navigation", "search",
	"subscribe", "sign in", "log in", "home",
}

// sidebarPatterns mark body-text matches that landed on sidebar or promo
// content instead of the article.
var sidebarPatterns = []string{
	"upcoming event", "advertisement", "newsletter", "subscribe now", "follow us",
}

// Verify tests every candidate selector in the set against the raw document
// it was discovered from, in priority order primary, fallback, tertiary. The
// first tier that yields at least one acceptable match becomes the field's
// working priority. A field where no tier matches is marked tested with
// working priority none; that is a valid terminal state, not an error, since
// a page may simply have no related_content.
//
// Verify mutates the set in place and never invents selector strings. It
// must run against the identical raw HTML used for discovery; re-fetching
// between the two stages breaks reproducibility.
func Verify(rawHTML string, set *SelectorSet) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return fmt.Errorf("failed to parse document for verification: %w", err)
	}

	for _, field := range Fields() {
		fs, ok := set.Selectors[field]
		if !ok || fs == nil {
			return fmt.Errorf("selector set missing field %q", field)
		}

		fs.WorkingPriority = TierNone
		fs.Tested = true

		for _, tier := range Tiers() {
			candidate := fs.Candidate(tier)
			if candidate == nil {
				continue
			}
			if selectorMatches(doc, field, *candidate) {
				fs.WorkingPriority = tier
				break
			}
		}
	}

	return nil
}

// selectorMatches applies one candidate selector and checks the match has
// real content. Invalid selector syntax counts as no match rather than an
// error; the model occasionally emits selectors the engine cannot parse.
func selectorMatches(doc *goquery.Document, field, selector string) bool {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return false
	}

	found := doc.FindMatcher(matcher)
	if found.Length() == 0 {
		return false
	}

	// body_text legitimately matches many elements, and a broad selector can
	// sweep up promo blocks alongside real paragraphs. The tier works if any
	// single match carries acceptable text, not just the first one.
	if field == FieldBodyText {
		accepted := false
		found.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if text != "" && acceptBodyText(text) {
				accepted = true
				return false
			}
			return true
		})
		return accepted
	}

	// Other fields are judged on the first match only.
	text := strings.TrimSpace(found.First().Text())
	if text == "" {
		return false
	}
	if field == FieldHeadline {
		return acceptHeadline(text)
	}
	return true
}

// acceptHeadline rejects matches that look like navigation chrome rather
// than an article title.
func acceptHeadline(text string) bool {
	if len(text) < minHeadlineChars {
		return false
	}
	lower := strings.ToLower(text)
	for _, pattern := range navPatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	return true
}

// acceptBodyText rejects matches that landed on sidebar or promotional
// content.
func acceptBodyText(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range sidebarPatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	return true
}
