// Package specdoc extracts what the pipeline needs from a markdown
// specification document.
package specdoc

import (
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultTitle is used when a document has no level-1 heading.
const DefaultTitle = "untitled"

var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func markdown() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New()
	})
	return parserInstance
}

// Title returns the text of the first level-1 heading, ATX or setext.
// Headings inside code blocks do not count.
func Title(doc string) string {
	for _, h := range Headings(doc) {
		if h.Level == 1 && h.Text != "" {
			return h.Text
		}
	}
	return DefaultTitle
}

// Heading is one heading of a document, in document order.
type Heading struct {
	Level int
	Text  string
}

// Headings returns every heading of doc with its inline text flattened.
func Headings(doc string) []Heading {
	if strings.TrimSpace(doc) == "" {
		return nil
	}
	source := []byte(doc)
	root := markdown().Parser().Parse(text.NewReader(source))

	var headings []Heading
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := node.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		headings = append(headings, Heading{
			Level: h.Level,
			Text:  strings.TrimSpace(inlineText(h, source)),
		})
		return ast.WalkSkipChildren, nil
	})
	return headings
}

func inlineText(node ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
