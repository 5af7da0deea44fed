package parser

import (
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Span is a half-open byte range.
type Span struct {
	Start, End int
}

// CodeSpans returns the byte ranges of fenced/indented code blocks and
// inline code spans in body, sorted by Start.
func CodeSpans(body string) []Span {
	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var spans []Span
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			if lines.Len() > 0 {
				spans = append(spans, Span{Start: lines.At(0).Start, End: lines.At(lines.Len() - 1).Stop})
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			start, end := -1, -1
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				t, ok := c.(*ast.Text)
				if !ok {
					continue
				}
				if start < 0 {
					start = t.Segment.Start
				}
				end = t.Segment.Stop
			}
			if start >= 0 {
				spans = append(spans, Span{Start: start, End: end})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// Overlaps reports whether [start, end) intersects any span.
func Overlaps(spans []Span, start, end int) bool {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].End > start })
	return i < len(spans) && spans[i].Start < end
}

// WithoutCode drops occurrences that overlap a code span or block.
func WithoutCode(body string, occs []Occurrence) []Occurrence {
	spans := CodeSpans(body)
	if len(spans) == 0 {
		return occs
	}
	out := occs[:0:0]
	for _, o := range occs {
		if !Overlaps(spans, o.Start, o.End) {
			out = append(out, o)
		}
	}
	return out
}
