// Package expressions resolves {{ }} template references against the
// outputs of upstream nodes, and evaluates condition expressions written in
// CEL, Expr or jq.
package expressions

import "strings"

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// Span is one {{ ... }} occurrence in a template. Start and End are byte
// offsets of the whole span, markers included. An unclosed span covers the
// literal text from its opening marker and has no expression.
type Span struct {
	Start    int
	End      int
	Expr     string
	Unclosed bool
}

// Raw returns the text of the span within s.
func (sp Span) Raw(s string) string { return s[sp.Start:sp.End] }

// IsExpression reports whether v is a string holding an opening marker.
func IsExpression(v any) bool {
	s, ok := v.(string)
	return ok && strings.Contains(s, openMarker)
}

// Scan finds the {{ ... }} spans of s, left to right. Matching is
// non-greedy: each span ends at the first closing marker. When another
// opening marker appears before that closing marker the span restarts there,
// and the abandoned text is reported as an unclosed span. An opening marker
// with no closing marker at all is reported unclosed up to the end of s.
func Scan(s string) []Span {
	var spans []Span
	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], openMarker)
		if idx == -1 {
			break
		}
		open := i + idx
		start := open + len(openMarker)

		end := strings.Index(s[start:], closeMarker)
		if end == -1 {
			spans = append(spans, Span{Start: open, End: len(s), Unclosed: true})
			break
		}
		end += start

		if restart := strings.LastIndex(s[start:end], openMarker); restart != -1 {
			restart += start
			spans = append(spans, Span{Start: open, End: restart, Unclosed: true})
			open = restart
			start = restart + len(openMarker)
		}

		spans = append(spans, Span{
			Start: open,
			End:   end + len(closeMarker),
			Expr:  strings.TrimSpace(s[start:end]),
		})
		i = end + len(closeMarker)
	}
	return spans
}
