package utils

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer cleans message bodies before they are stored in a ticket thread.
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

// NewHTMLSanitizer creates a sanitizer that keeps the formatting a support
// thread can render and drops scripts, styles and event handlers.
func NewHTMLSanitizer() *HTMLSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("b", "strong", "i", "em", "u", "s", "strike", "del")
	p.AllowElements("p", "br", "hr")
	p.AllowElements("ul", "ol", "li")
	p.AllowElements("blockquote", "code", "pre")

	p.AllowElements("a")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &HTMLSanitizer{policy: p}
}

// Sanitize cleans HTML content. Plain text is returned unchanged so that a
// reply such as "a < b" is not entity-escaped.
func (s *HTMLSanitizer) Sanitize(content string) string {
	if !IsHTML(content) {
		return content
	}
	return strings.TrimSpace(s.policy.Sanitize(content))
}

// IsHTML checks if the content appears to be HTML
func IsHTML(content string) bool {
	htmlTags := []string{"<p>", "<p ", "<br", "<div", "<span", "<b>", "<i>", "<strong>", "<em>", "<ul>", "<ol>", "<li>", "<table", "<a ", "<blockquote", "<img ", "<script", "<style", "<html", "<body"}

	contentLower := strings.ToLower(content)
	for _, tag := range htmlTags {
		if strings.Contains(contentLower, tag) {
			return true
		}
	}

	return false
}

var (
	blockBreakRegexp = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/li|/tr|/h[1-6])\s*>`)
	dropBlockRegexp  = regexp.MustCompile(`(?is)<\s*(script|style|head)[^>]*>.*?<\s*/\s*(script|style|head)\s*>`)
)

// HTMLToText removes all markup, keeping line breaks where block elements
// ended, and unescapes entities.
func HTMLToText(content string) string {
	if content == "" {
		return ""
	}
	content = dropBlockRegexp.ReplaceAllString(content, "")
	content = blockBreakRegexp.ReplaceAllString(content, "\n")
	text := bluemonday.StrictPolicy().Sanitize(content)
	return strings.TrimSpace(html.UnescapeString(text))
}
