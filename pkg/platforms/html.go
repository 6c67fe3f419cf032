package platforms

import (
	"html"
	"regexp"
	"strings"
)

var (
	lineBreakTag  = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraphEnd  = regexp.MustCompile(`(?i)</p>\s*<p[^>]*>`)
	anyTag        = regexp.MustCompile(`<[^>]*>`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// StripHTML converts status HTML into the plain text a status edit expects.
// Line breaks and paragraph boundaries become newlines; entities are decoded.
func StripHTML(content string) string {
	text := lineBreakTag.ReplaceAllString(content, "\n")
	text = paragraphEnd.ReplaceAllString(text, "\n\n")
	text = anyTag.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
