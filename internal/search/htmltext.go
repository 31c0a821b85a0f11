package search

import (
	"strings"

	"golang.org/x/net/html"
)

// cleanContent strips markup from snippets that arrive as HTML fragments and
// collapses whitespace. Plain text passes through with whitespace collapsed.
func cleanContent(content string) string {
	if !strings.Contains(content, "<") {
		return compactWhitespace(content)
	}
	node, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return compactWhitespace(content)
	}
	var b strings.Builder
	extractText(node, &b, false)
	return compactWhitespace(b.String())
}

func extractText(n *html.Node, b *strings.Builder, hidden bool) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript":
			hidden = true
		case "br", "p", "div", "li", "tr", "h1", "h2", "h3":
			b.WriteString("\n")
		}
	}
	if !hidden && n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, b, hidden)
	}
}

func compactWhitespace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r", ""), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}
