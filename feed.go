package sleuth

import (
	"fmt"

	"github.com/mmcdole/gofeed"
)

// ResolveFeedEntry parses feed content (RSS or Atom; gofeed detects both)
// and returns the link of the newest entry. The pipeline uses this when a
// target URL turns out to serve a feed instead of an article: selectors are
// discovered against a real article page, not the feed document.
func ResolveFeedEntry(content string) (string, error) {
	fp := gofeed.NewParser()
	feed, err := fp.ParseString(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse feed: %w", err)
	}

	for _, item := range feed.Items {
		if item != nil && item.Link != "" {
			return item.Link, nil
		}
	}
	return "", fmt.Errorf("feed %q has no linked entries", feed.Title)
}
