// Package render turns raw model output into sanitized HTML. It is the
// display surface for HTML-embedding hosts (web views, rich clients);
// the terminal client renders through glamour instead. The engine treats
// the result as opaque display text; nothing downstream re-parses it.
package render

import (
	"bytes"
	"html"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	once     sync.Once
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
)

func setup() {
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
	)
	policy = bluemonday.UGCPolicy()
}

// HTML renders markdown to sanitized HTML. Model output is untrusted
// input; everything passes through the sanitizer, and when the markdown
// renderer itself chokes the raw text is escaped rather than dropped.
func HTML(raw string) string {
	once.Do(setup)

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(raw), &buf); err != nil {
		return "<p>" + html.EscapeString(raw) + "</p>"
	}
	return policy.Sanitize(buf.String())
}
