// Package htmltext extracts paragraph text from stored page HTML. Page
// bodies are either marked up with <p> elements or plain text with newline
// breaks; translations are stored per paragraph index, so the index here
// must match the sequential position in the original HTML.
package htmltext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Paragraph is one extracted paragraph with its position in the source.
type Paragraph struct {
	Index int
	Text  string
}

// titleSpanJoin collapses title spans that were split across lines by the
// upstream converter, so the newline fallback does not cut a heading in
// two.
var titleSpanJoin = regexp.MustCompile(`(?s)<span[^>]*class="[^"]*title[^"]*"[^>]*>\s*`)

// Extract returns the paragraphs of an HTML fragment. <p> elements win
// when present; otherwise the stripped text is split on newlines. The
// Index field counts every paragraph in the original HTML, including ones
// whose text collapses to empty.
func Extract(fragment string) []Paragraph {
	if strings.TrimSpace(fragment) == "" {
		return nil
	}

	if paras := extractElements(fragment); len(paras) > 0 {
		return paras
	}
	return extractLines(fragment)
}

// extractElements walks the parsed fragment collecting <p> contents.
func extractElements(fragment string) []Paragraph {
	root, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil
	}

	var paras []Paragraph
	index := 0

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			text := strings.Join(strings.Fields(nodeText(n)), " ")
			if text != "" {
				paras = append(paras, Paragraph{Index: index, Text: text})
			}
			index++
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return paras
}

// extractLines splits stripped text on newlines, pre-joining title spans
// so a heading split across source lines stays one paragraph.
func extractLines(fragment string) []Paragraph {
	joined := titleSpanJoin.ReplaceAllStringFunc(fragment, func(m string) string {
		return strings.ReplaceAll(m, "\n", " ")
	})
	stripped := stripTags(joined)

	var paras []Paragraph
	for i, line := range strings.Split(stripped, "\n") {
		text := strings.Join(strings.Fields(line), " ")
		if text != "" {
			paras = append(paras, Paragraph{Index: i, Text: text})
		}
	}
	return paras
}

// stripTags removes markup, keeping text content and line structure.
func stripTags(fragment string) string {
	var b strings.Builder
	tok := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tok.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tok.TagName()
			if string(name) == "br" {
				b.WriteByte('\n')
			}
		}
	}
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// Nearest returns the index of the paragraph whose text is closest to
// target, by shared-token overlap with a containment fast path. It returns
// -1 when paras is empty or nothing overlaps at all.
func Nearest(paras []Paragraph, target string) int {
	target = strings.Join(strings.Fields(target), " ")
	if target == "" || len(paras) == 0 {
		return -1
	}

	targetTokens := tokenSet(target)
	best, bestScore := -1, 0.0

	for _, p := range paras {
		if strings.Contains(p.Text, target) || strings.Contains(target, p.Text) {
			return p.Index
		}
		score := overlap(targetTokens, tokenSet(p.Text))
		if score > bestScore {
			best, bestScore = p.Index, score
		}
	}

	return best
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

// overlap is the Jaccard coefficient of two token sets.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 || shared == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
