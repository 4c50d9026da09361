// File: internal/snapshot/htmltext.go
package snapshot

import (
	"strings"

	"golang.org/x/net/html"
)

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// blockElements get a newline between their text runs so the extracted text
// keeps a rough document structure.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "li": true,
	"br": true, "tr": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "ul": true, "ol": true, "table": true,
	"form": true, "header": true, "footer": true, "nav": true, "main": true,
}

// ExtractText pulls readable text out of raw HTML. It backs the snapshot
// when script evaluation is unavailable and only raw markup can be fetched.
func ExtractText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var b strings.Builder
	// Tracks the last written byte; calling b.String() per node would copy
	// the whole buffer each time.
	var last byte
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if b.Len() > 0 && last != '\n' {
					b.WriteByte(' ')
				}
				b.WriteString(text)
				last = text[len(text)-1]
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			if b.Len() > 0 && last != '\n' {
				b.WriteByte('\n')
				last = '\n'
			}
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String())
}
