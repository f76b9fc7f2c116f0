package expressions

import (
	"encoding/json"
	"strings"

	"github.com/rendis/ruleflow/internal/graph"
	"github.com/rendis/ruleflow/internal/nodes"
	"github.com/rendis/ruleflow/pkg/schema"
)

// AvailableVariable is a variable a node can reference, with the text the
// editor inserts for it.
type AvailableVariable struct {
	schema.VariableDescriptor
	Reference  string `json:"reference"`
	InsertText string `json:"insertText"`
}

// NodeVariables groups the variables exposed by one upstream node.
type NodeVariables struct {
	NodeID    string              `json:"nodeId"`
	NodeType  schema.NodeType     `json:"nodeType"`
	Label     string              `json:"label,omitempty"`
	Variables []AvailableVariable `json:"variables"`
}

// InsertText returns the template text that references path on nodeID.
func InsertText(nodeID, path string) string {
	return "{{ " + Reference{Namespace: NamespaceNode, NodeID: nodeID, Path: path}.String() + " }}"
}

// Available lists what nodeID may reference: the variables of each of its
// ancestors, closest first. Ancestors exposing nothing (unknown kinds) are
// left out.
func Available(g *graph.Graph, nodeID string) []NodeVariables {
	var out []NodeVariables
	for _, id := range g.Ancestors(nodeID) {
		node, ok := g.Node(id)
		if !ok {
			continue
		}
		vars := nodes.ExposedVariables(*node)
		if len(vars) == 0 {
			continue
		}

		nv := NodeVariables{
			NodeID:    id,
			NodeType:  node.Type,
			Label:     nodeLabel(node.Data),
			Variables: make([]AvailableVariable, len(vars)),
		}
		for i, v := range vars {
			ref := Reference{Namespace: NamespaceNode, NodeID: id, Path: v.Path}
			nv.Variables[i] = AvailableVariable{
				VariableDescriptor: v,
				Reference:          ref.String(),
				InsertText:         InsertText(id, v.Path),
			}
		}
		out = append(out, nv)
	}
	return out
}

// Catalog indexes available variables by node ID, the form Options.Variables
// expects.
func Catalog(available []NodeVariables) map[string][]schema.VariableDescriptor {
	out := make(map[string][]schema.VariableDescriptor, len(available))
	for _, nv := range available {
		vars := make([]schema.VariableDescriptor, len(nv.Variables))
		for i, v := range nv.Variables {
			vars[i] = v.VariableDescriptor
		}
		out[nv.NodeID] = vars
	}
	return out
}

// PreviewContext builds a context from the example values of available
// variables, so the editor can render templates before any event arrives.
func PreviewContext(available []NodeVariables, env map[string]string) *ExpressionContext {
	ctx := &ExpressionContext{
		Nodes: make(map[string]map[string]any, len(available)),
		Env:   copyEnv(env),
	}
	for _, nv := range available {
		out := make(map[string]any, len(nv.Variables))
		for _, v := range nv.Variables {
			if v.ExampleValue.IsNull() {
				continue
			}
			setPath(out, schema.SplitPath(v.Path), v.ExampleValue.Any())
		}
		ctx.Nodes[nv.NodeID] = out
	}
	return ctx
}

func setPath(m map[string]any, segments []string, value any) {
	for i, seg := range segments {
		if i == len(segments)-1 {
			m[seg] = value
			return
		}
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[seg] = next
		}
		m = next
	}
}

func nodeLabel(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var v struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return ""
	}
	return v.Label
}

// ReferencedType returns the declared type of the variable field refers to.
// It only answers for a field that is exactly one $node reference to a
// variable of a known, concrete type.
func ReferencedType(g *graph.Graph, field string) (schema.FieldType, bool) {
	refs := References(field)
	if len(refs) != 1 || refs[0].Err != nil {
		return "", false
	}
	loc := refs[0]
	if strings.TrimSpace(field[:loc.Span.Start]) != "" || strings.TrimSpace(field[loc.Span.End:]) != "" {
		return "", false
	}
	if loc.Ref.Namespace != NamespaceNode || loc.Ref.Path == "" {
		return "", false
	}
	target, ok := g.Node(loc.Ref.NodeID)
	if !ok {
		return "", false
	}
	ft, ok := nodes.VariableType(nodes.ExposedVariables(*target), loc.Ref.Path)
	if !ok || ft == schema.FieldAny {
		return "", false
	}
	return ft, true
}
