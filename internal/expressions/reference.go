package expressions

import (
	"strings"

	"github.com/rendis/ruleflow/pkg/schema"
)

// Namespace is the root of a reference.
type Namespace string

const (
	NamespaceNode Namespace = "node"
	NamespaceEnv  Namespace = "env"
)

// Reference is a parsed {{ }} expression: $node.<id>[.<path>] or $env.<NAME>.
type Reference struct {
	Namespace Namespace `json:"namespace"`
	NodeID    string    `json:"nodeId,omitempty"`
	Path      string    `json:"path,omitempty"`
	Segments  []string  `json:"-"`
	Name      string    `json:"name,omitempty"` // env only
}

// String renders the reference in canonical form.
func (r Reference) String() string {
	switch r.Namespace {
	case NamespaceEnv:
		return "$env." + r.Name
	case NamespaceNode:
		if r.Path == "" {
			return "$node." + r.NodeID
		}
		return "$node." + r.NodeID + "." + r.Path
	}
	return ""
}

// ParseReference parses the inside of a {{ }} span.
func ParseReference(expr string) (Reference, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Reference{}, schema.NewError(schema.ErrCodeInterpolation, "empty reference: {{ }}")
	}
	if strings.ContainsAny(expr, " \t\r\n") {
		return Reference{}, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid reference %q: references cannot contain whitespace", expr)
	}

	switch {
	case strings.HasPrefix(expr, "$node."):
		return parseNodeReference(expr, strings.TrimPrefix(expr, "$node."))
	case strings.HasPrefix(expr, "$env."):
		name := strings.TrimPrefix(expr, "$env.")
		if name == "" || strings.ContainsAny(name, ".[]") {
			return Reference{}, schema.NewErrorf(schema.ErrCodeInterpolation,
				"invalid env reference %q: expected $env.<NAME>", expr)
		}
		return Reference{Namespace: NamespaceEnv, Name: name}, nil
	default:
		return Reference{}, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unknown namespace in %q; available: $node, $env", expr).
			WithDetails(map[string]any{"expression": expr, "available_namespaces": []string{"$node", "$env"}})
	}
}

func parseNodeReference(expr, rest string) (Reference, error) {
	cut := strings.IndexAny(rest, ".[")
	id, path := rest, ""
	if cut != -1 {
		id = rest[:cut]
		path = strings.TrimPrefix(rest[cut:], ".")
	}
	if id == "" {
		return Reference{}, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid node reference %q: expected $node.<id>[.<path>]", expr)
	}

	ref := Reference{Namespace: NamespaceNode, NodeID: id}
	if path == "" {
		if cut != -1 {
			return Reference{}, schema.NewErrorf(schema.ErrCodeInterpolation,
				"invalid node reference %q: empty path", expr)
		}
		return ref, nil
	}

	segments := schema.SplitPath(path)
	if strings.HasPrefix(path, "[") {
		segments = segments[1:]
	}
	for i, seg := range segments {
		if seg == "" {
			return Reference{}, schema.NewErrorf(schema.ErrCodeInterpolation,
				"empty segment in path %q at position %d", expr, i).
				WithDetails(map[string]any{"expression": expr})
		}
	}
	if strings.Count(path, "[") != strings.Count(path, "]") {
		return Reference{}, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unbalanced brackets in %q", expr)
	}

	ref.Segments = segments
	ref.Path = strings.Join(segments, ".")
	return ref, nil
}

// Located is a reference found in a template, or the reason a span could
// not be parsed.
type Located struct {
	Span Span
	Ref  Reference
	Err  error
}

// References lists the spans of s with their parsed references. Unclosed
// spans are included with an error.
func References(s string) []Located {
	spans := Scan(s)
	out := make([]Located, 0, len(spans))
	for _, sp := range spans {
		loc := Located{Span: sp}
		if sp.Unclosed {
			loc.Err = schema.NewErrorf(schema.ErrCodeInterpolation, "unclosed {{ in %q", sp.Raw(s))
		} else {
			loc.Ref, loc.Err = ParseReference(sp.Expr)
		}
		out = append(out, loc)
	}
	return out
}
