package format

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripMarkup converts flat markup into plain text, one line per paragraph,
// heading, or list item.
func StripMarkup(markup string) string {
	return PlainText(MarkupToBlocks(markup))
}

// ExtractListItems pulls an ordered list of items out of rich text. HTML-ish
// input is split on <li> boundaries; anything else falls back to one item per
// non-empty line with bullet prefixes stripped.
func ExtractListItems(s string) []string {
	items := []string{}
	if s == "" {
		return items
	}

	if strings.Contains(strings.ToLower(s), "<li") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("li").Each(func(_ int, sel *goquery.Selection) {
				if text := strings.TrimSpace(sel.Text()); text != "" {
					items = append(items, text)
				}
			})
			if len(items) > 0 {
				return items
			}
		}
		// Unparseable HTML degrades to the line-based path.
	}

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		items = append(items, stripBulletPrefix(line))
	}
	return items
}

// HTMLToText extracts readable text from an HTML fragment as supplied by
// structured-fields trackers. Returns the input unchanged when it does not
// look like HTML, and best-effort text when parsing fails.
func HTMLToText(html string) string {
	if !strings.Contains(html, "<") {
		return strings.TrimSpace(html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}

	// Block-level boundaries become newlines so list items and paragraphs
	// stay distinguishable in the plain form.
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})

	return cleanWhitespace(doc.Text())
}

// cleanWhitespace trims each line and drops blank lines.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
