package sleuth

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxCleanedChars is the character budget for cleaned HTML handed to the
// discovery agent. Measured after cleaning; the identified main-content
// subtree is kept intact in preference to truncating the full document.
const MaxCleanedChars = 30000

// Elements that never carry article content and only burn model tokens.
var noiseElements = "script, style, svg, path, noscript, iframe, nav, header, footer"

// Common sidebar and ad containers removed before content isolation.
var noiseSelectors = []string{
	".sidebar", ".widget", ".advertisement", ".ad", "#sidebar", ".related-posts",
}

// contentSelectors is the priority list for locating the main-content
// subtree. Semantic containers first, then the usual CMS class names.
var contentSelectors = []string{
	"article",
	"main",
	"[role=\"main\"]",
	".post",
	".entry",
	".article",
	".content",
	"#content",
	".article-content",
	".post-content",
	".entry-content",
	"#main-content",
	".main-content",
}

// minParagraphsForContent is the paragraph count a div must reach before
// the densest-div fallback accepts it as the article body.
const minParagraphsForContent = 3

// Clean strips noise from raw HTML, isolates the most probable main-content
// subtree, and truncates the result to MaxCleanedChars. It is a pure
// function: no network access, deterministic for a given input.
func Clean(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find(noiseElements).Remove()
	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}

	main := findMainContent(doc)
	if main == nil {
		// No recognizable structure at all; hand over the stripped
		// document and let the character budget do the limiting.
		out, err := doc.Html()
		if err != nil {
			return "", fmt.Errorf("failed to serialize document: %w", err)
		}
		return truncate(out, MaxCleanedChars), nil
	}

	out, err := goquery.OuterHtml(main)
	if err != nil {
		return "", fmt.Errorf("failed to serialize content subtree: %w", err)
	}
	return truncate(out, MaxCleanedChars), nil
}

// findMainContent walks the container priority list, then falls back to the
// div holding the most paragraphs, then to body.
func findMainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}

	// Fallback: the div with the most <p> children is usually the article.
	var best *goquery.Selection
	bestCount := 0
	doc.Find("div").Each(func(_ int, div *goquery.Selection) {
		if n := div.Find("p").Length(); n > bestCount {
			best = div
			bestCount = n
		}
	})
	if best != nil && bestCount >= minParagraphsForContent {
		return best
	}

	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
