package directions

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML returns the text content of a provider instruction like
// "Turn <b>left</b> onto Main St<div style=\"font-size:0.9em\">Toll road</div>".
// Block elements are separated by a space, whitespace is collapsed
// and non-breaking spaces become plain ones.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "div", "br", "p", "li":
				b.WriteByte(' ')
			}
		}
	}
}
