package discover

import "fmt"

// promptTemplate is the fixed instruction sent with every discovery call.
// It constrains the model to selectors built from attributes that actually
// appear in the supplied HTML and pins the exact response shape; anything
// else is rejected by the schema check on the way back.
const promptTemplate = `You are analyzing HTML to find CSS selectors for web scraping.

CRITICAL INSTRUCTIONS:
1. Look at the ACTUAL class names, IDs, and attributes in the HTML below
2. Do NOT guess or make up common class names unless they actually appear
3. Return ONLY selectors that exist in the provided HTML

Here is the HTML from %s:

%s

Analyze the HTML above and find CSS selectors for these fields:

headline - Main article title (look for h1, h2 with specific classes IN THE ARTICLE, NOT in navigation/header/menu)
author - Author name (look for links with "author" in href, or author/byline classes)
date - Publication date (look for <time> tags or date/published classes)
body_text - Article paragraphs (look for <p> tags inside article/content containers, NOT in sidebars/ads/events)
related_content - Related article links (look in aside, sidebar, or related sections)

For each field, return THREE selectors:
- primary: Most specific (using actual classes/IDs from the HTML)
- fallback: Less specific but reliable
- tertiary: Generic (just tag name, or "NA" if field doesn't exist)

IMPORTANT RULES:
1. Only use class names and IDs that ACTUALLY appear in the HTML above
2. Avoid selectors that would match navigation, menus, headers, or footer elements
3. For headline: find h1/h2 INSIDE the article content, not in page navigation
4. For body_text: find paragraphs that are part of the article, not ads/sidebars/upcoming events

Return as JSON in this exact format:
{
  "headline": {"primary": "h1.actual-class-here", "fallback": "h1", "tertiary": "h2"},
  "author": {"primary": "a[href*='author']", "fallback": ".byline", "tertiary": "NA"},
  "date": {"primary": "time.date-class", "fallback": "time", "tertiary": ".published"},
  "body_text": {"primary": "article.content p", "fallback": "article p", "tertiary": "p"},
  "related_content": {"primary": "aside.related a", "fallback": ".sidebar a", "tertiary": "NA"}
}

Return ONLY valid JSON, no markdown code blocks, no explanations.`

// buildPrompt fills the instruction template with the page under analysis.
func buildPrompt(url, cleanedHTML string) string {
	return fmt.Sprintf(promptTemplate, url, cleanedHTML)
}
