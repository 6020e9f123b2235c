package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ExtractedPage is the readable text of an HTML document with its metadata.
type ExtractedPage struct {
	Title       string
	Description string
	Text        string
	Truncated   bool
}

// ExtractText parses rawHTML and returns its readable text. Scripts, styles
// and page chrome (nav, footer, forms) are dropped; block elements become
// line breaks. Text longer than maxLength runes is truncated.
func ExtractText(rawHTML string, maxLength int) (*ExtractedPage, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	page := &ExtractedPage{
		Title:       extractTitle(doc),
		Description: extractMetaDescription(doc),
	}

	w := &textWriter{}
	collectText(doc, w)
	text := w.String()

	if maxLength > 0 {
		if runes := []rune(text); len(runes) > maxLength {
			text = string(runes[:maxLength])
			page.Truncated = true
		}
	}
	page.Text = text
	return page, nil
}

// textWriter accumulates text, collapsing runs of whitespace and blank lines.
type textWriter struct {
	b            strings.Builder
	pendingNL    int
	pendingSpace bool
}

func (w *textWriter) word(s string) {
	if w.b.Len() > 0 {
		switch {
		case w.pendingNL > 1:
			w.b.WriteString("\n\n")
		case w.pendingNL == 1:
			w.b.WriteString("\n")
		case w.pendingSpace:
			w.b.WriteString(" ")
		}
	}
	w.b.WriteString(s)
	w.pendingNL = 0
	w.pendingSpace = false
}

func (w *textWriter) text(s string) {
	if s == "" {
		return
	}
	if isSpace(s[0]) {
		w.pendingSpace = true
	}
	for _, f := range strings.Fields(s) {
		w.word(f)
		w.pendingSpace = true
	}
	if !isSpace(s[len(s)-1]) {
		w.pendingSpace = false
	}
}

func (w *textWriter) lineBreak(n int) {
	if n > w.pendingNL {
		w.pendingNL = n
	}
}

func (w *textWriter) String() string {
	return strings.TrimSpace(w.b.String())
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == '\f'
}

// collectText walks the tree writing visible text into w.
func collectText(n *html.Node, w *textWriter) {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) {
			return
		}
		if tag == "br" {
			w.lineBreak(1)
			return
		}
		if isBlockElement(tag) {
			w.lineBreak(blockSpacing(tag))
			defer w.lineBreak(blockSpacing(tag))
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, w)
	}
}

// isSkippedElement returns true for elements whose text is never content
func isSkippedElement(tagName string) bool {
	skipped := map[string]bool{
		"head":     true,
		"script":   true,
		"style":    true,
		"noscript": true,
		"template": true,
		"iframe":   true,
		"embed":    true,
		"object":   true,
		"svg":      true,
		"canvas":   true,
		"nav":      true,
		"footer":   true,
		"form":     true,
		"button":   true,
		"select":   true,
	}
	return skipped[tagName]
}

// isBlockElement returns true for block-level elements (for formatting)
func isBlockElement(tagName string) bool {
	blocks := map[string]bool{
		"div":        true,
		"p":          true,
		"section":    true,
		"article":    true,
		"header":     true,
		"main":       true,
		"aside":      true,
		"h1":         true,
		"h2":         true,
		"h3":         true,
		"h4":         true,
		"h5":         true,
		"h6":         true,
		"ul":         true,
		"ol":         true,
		"li":         true,
		"dl":         true,
		"dt":         true,
		"dd":         true,
		"table":      true,
		"tr":         true,
		"td":         true,
		"th":         true,
		"blockquote": true,
		"pre":        true,
		"figure":     true,
		"figcaption": true,
		"hr":         true,
	}
	return blocks[tagName]
}

// blockSpacing returns 2 for elements that separate paragraphs, 1 otherwise
func blockSpacing(tagName string) int {
	switch tagName {
	case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre", "table", "section", "article":
		return 2
	}
	return 1
}

// extractTitle extracts the page title from the document
func extractTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if title != "" {
				return
			}
		}
	}
	traverse(doc)
	return title
}

// extractMetaDescription extracts the meta description from the document
func extractMetaDescription(doc *html.Node) string {
	var description string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var isDescription bool
			var content string
			for _, attr := range n.Attr {
				if attr.Key == "name" && strings.EqualFold(attr.Val, "description") {
					isDescription = true
				}
				if attr.Key == "content" {
					content = attr.Val
				}
			}
			if isDescription && content != "" {
				description = strings.TrimSpace(content)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if description != "" {
				return
			}
		}
	}
	traverse(doc)
	return description
}
