package models

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	brRe        = regexp.MustCompile(`(?i)<br\s*/?>`)
	pCloseRe    = regexp.MustCompile(`(?i)</p>\s*<p[^>]*>`)
	spaceRe     = regexp.MustCompile(`[ \t]+`)
)

// StripHTML converts status HTML into readable plain text. Paragraph and
// line-break tags become newlines before tag stripping so the text keeps its
// shape when spoken line by line.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = brRe.ReplaceAllString(s, "\n")
	s = pCloseRe.ReplaceAllString(s, "\n\n")
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
