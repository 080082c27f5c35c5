// Package htmlsanitize cleans user-supplied text before it is stored.
//
// Post and comment bodies keep a safe subset of HTML (Sanitize). Names,
// titles and descriptions copied onto other records are reduced to plain
// text (PlainText) so they never carry markup into notifications or emails.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ugc    = newUGCPolicy()
	strict = bluemonday.StrictPolicy()
)

func newUGCPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("table", "thead", "tbody", "tr", "th", "td")
	p.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("td", "th")
	return p
}

// Sanitize returns s with unsafe elements and attributes removed.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return ugc.Sanitize(s)
}

// PlainText strips every tag from s, unescapes entities, and trims the
// result. If nothing is left, def is returned.
func PlainText(s, def string) string {
	out := strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
	if out == "" {
		return def
	}
	return out
}

// IsPlainText reports whether s contains no tag-like sequences.
func IsPlainText(s string) bool {
	return !(strings.Contains(s, "<") && strings.Contains(s, ">"))
}
