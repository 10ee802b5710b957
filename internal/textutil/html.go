package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// assOverride matches SSA/ASS override blocks such as {\an8} that some SRT
// files carry alongside HTML-ish tags.
var assOverride = regexp.MustCompile(`\{\\[^}]*\}`)

// StripTags removes markup from subtitle text and returns the remaining
// text, trimmed. Entities are unescaped.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&{") {
		return strings.TrimSpace(s)
	}

	s = assOverride.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))

	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF, or malformed markup the tokenizer gave up on.
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte('\n')
			}
		}
	}
}
