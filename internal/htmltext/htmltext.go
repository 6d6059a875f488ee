// Package htmltext renders extraction payloads for terminal display. Sites
// hand back whatever markup their response container holds; this flattens it
// to readable text without pretending to be a full renderer.
package htmltext

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/chatdock/chatdock/api/schemas"
)

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"iframe":   true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true,
	"blockquote": true, "pre": true, "br": true, "hr": true,
}

// Text flattens markup to plain text. Block-level elements become line
// breaks, list items get a leading dash, and noise elements (script, style,
// svg) are dropped. Unparseable input is returned verbatim rather than lost.
func Text(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return strings.TrimSpace(rawHTML)
	}
	var b strings.Builder
	flatten(doc, &b)
	return tidy(b.String())
}

func flatten(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if prev := b.String(); prev != "" && !strings.HasSuffix(prev, "\n") && !strings.HasSuffix(prev, " ") {
				b.WriteString(" ")
			}
			b.WriteString(text)
		}
		return
	case html.ElementNode:
		name := strings.ToLower(n.Data)
		if skippedElements[name] {
			return
		}
		if blockElements[name] {
			breakLine(b)
		}
		if name == "li" {
			b.WriteString("- ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			flatten(c, b)
		}
		if blockElements[name] {
			breakLine(b)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(c, b)
	}
}

// breakLine terminates the current line, never emitting blank lines.
func breakLine(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
}

// tidy collapses runs of blank lines and trims trailing space per line.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Render turns an extraction payload into display output for the requested
// format. The text format prefers the payload's own text and falls back to
// flattening the markup; both stacks text above the raw markup.
func Render(p *schemas.ExtractPayload, format schemas.OutputFormat) string {
	if p == nil {
		return ""
	}
	text := strings.TrimSpace(p.Text)
	if text == "" && p.HTML != "" {
		text = Text(p.HTML)
	}
	switch format {
	case schemas.OutputHTML:
		return strings.TrimSpace(p.HTML)
	case schemas.OutputBoth:
		htmlPart := strings.TrimSpace(p.HTML)
		if htmlPart == "" {
			return text
		}
		if text == "" {
			return htmlPart
		}
		return fmt.Sprintf("%s\n\n--- html ---\n%s", text, htmlPart)
	default:
		return text
	}
}
