package line

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
)

// ToPlainText renders model-produced markdown as plain text for the
// LINE chat bubble, which has no markdown rendering. Bold markers,
// headings, and link syntax disappear; list structure survives as
// plain lines.
func ToPlainText(markdown string) string {
	var rendered bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &rendered); err != nil {
		return markdown
	}

	doc, err := html.Parse(&rendered)
	if err != nil {
		return markdown
	}

	var b strings.Builder
	collectText(doc, &b)

	lines := strings.Split(b.String(), "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " ")
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "li", "h1", "h2", "h3", "h4", "h5", "h6", "br", "div", "blockquote", "pre":
			b.WriteByte('\n')
		}
	}
}
