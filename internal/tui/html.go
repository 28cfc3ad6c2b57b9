package tui

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText turns a product description into terminal text. Block elements
// become line breaks, list items get bullets and script/style bodies are
// dropped. Entities are decoded by the tokenizer.
func PlainText(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return tidy(b.String())

		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "li":
				b.WriteString("\n• ")
			case "br", "p", "div", "ul", "ol", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				b.WriteString("\n")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "ul", "ol", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				b.WriteString("\n")
			}
		}
	}
}

// tidy trims every line, collapses inner runs of spaces and drops blank lines.
func tidy(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || line == "•" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
