package browser

import (
	"strings"

	"golang.org/x/net/html"
)

// Tags whose text is never user-visible content.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"iframe":   true,
	"head":     true,
	"template": true,
}

const maxTextSize = 60_000

// VisibleText extracts the visible text of an HTML fragment, whitespace
// collapsed, one block element per line. Used for page-level assertions and
// as the DOM snapshot handed to the judge.
func VisibleText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	var b strings.Builder
	collectText(doc, &b)

	lines := make([]string, 0, 32)
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}

	out := strings.Join(lines, "\n")
	if len(out) > maxTextSize {
		out = out[:maxTextSize]
	}
	return out
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && skippedTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode && isBlock(n.Data) {
		b.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if n.Type == html.ElementNode && isBlock(n.Data) {
		b.WriteString("\n")
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "li", "tr", "br",
		"h1", "h2", "h3", "h4", "h5", "h6", "pre", "form":
		return true
	}
	return false
}
