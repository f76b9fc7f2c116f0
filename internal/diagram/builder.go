package diagram

import (
	"fmt"

	"github.com/rendis/ruleflow/internal/engine"
	"github.com/rendis/ruleflow/internal/graph"
	"github.com/rendis/ruleflow/internal/nodes"
	"github.com/rendis/ruleflow/pkg/schema"
)

// Build constructs a DiagramModel from a workflow and an optional report.
// Nodes follow evaluation order; edges pointing at missing nodes are left
// out. With a report, each node carries its outcome and edges leaving a
// condition are labelled with its result.
func Build(wf *schema.Workflow, report *engine.Report) (*DiagramModel, error) {
	if wf == nil {
		return nil, fmt.Errorf("diagram: workflow is nil")
	}

	g := graph.New(wf.Nodes, wf.Edges)
	order, _ := g.TopologicalOrder()

	model := &DiagramModel{Title: titleOf(wf)}
	for _, id := range order {
		wn, _ := g.Node(id)
		node := &Node{ID: id, Label: nodeLabel(*wn), Kind: kindOf(wn.Type)}
		if report != nil {
			node.Status = overlayFor(report, id)
		}
		model.Nodes = append(model.Nodes, node)
	}

	for _, id := range order {
		for _, child := range g.Children(id) {
			model.Edges = append(model.Edges, Edge{From: id, To: child, Label: edgeLabel(report, id)})
		}
	}

	model.Levels = buildLevels(g, order)
	return model, nil
}

func kindOf(t schema.NodeType) NodeKind {
	switch t {
	case schema.NodeTypeTrigger:
		return NodeKindTrigger
	case schema.NodeTypeCondition:
		return NodeKindCondition
	case schema.NodeTypeAction:
		return NodeKindAction
	default:
		return NodeKindUnknown
	}
}

// nodeLabel creates a human-readable label: the id, then the node's own
// label or action type on a second line.
func nodeLabel(wn schema.WorkflowNode) string {
	kind, _ := nodes.Decode(wn)
	var extra string
	switch k := kind.(type) {
	case *nodes.Trigger:
		extra = k.Data.Label
	case *nodes.Condition:
		extra = k.Data.Label
	case *nodes.Action:
		extra = k.Data.Label
		if extra == "" {
			extra = k.Data.ActionType
		}
	case *nodes.Unknown:
		extra = string(k.NodeType)
	}
	if extra != "" {
		return fmt.Sprintf("%s\n(%s)", wn.ID, extra)
	}
	return wn.ID
}

// overlayFor maps a node's report outcome to an overlay, or nil when the
// report does not mention the node.
func overlayFor(report *engine.Report, id string) *StatusOverlay {
	outcome, ok := report.Node(id)
	if !ok {
		return nil
	}

	switch outcome.Status {
	case engine.NodeSkipped:
		return &StatusOverlay{Status: StatusSkipped}
	case engine.NodeFailed:
		return &StatusOverlay{Status: StatusFailed}
	}

	switch outcome.Type {
	case schema.NodeTypeTrigger:
		if t, ok := report.Trigger(id); ok && t.Fired {
			return &StatusOverlay{Status: StatusFired}
		}
		return &StatusOverlay{Status: StatusIdle}
	case schema.NodeTypeCondition:
		detail := ""
		if v, ok := outcome.Output["value"]; ok && v != nil {
			detail = fmt.Sprintf("%v", v)
		}
		if result, _ := outcome.Output["result"].(bool); result {
			return &StatusOverlay{Status: StatusPassed, Detail: detail}
		}
		return &StatusOverlay{Status: StatusRejected, Detail: detail}
	case schema.NodeTypeAction:
		if outcome.Eligible {
			return &StatusOverlay{Status: StatusEligible}
		}
		return &StatusOverlay{Status: StatusBlocked}
	}
	return nil
}

func edgeLabel(report *engine.Report, from string) string {
	if report == nil {
		return ""
	}
	outcome, ok := report.Node(from)
	if !ok || outcome.Type != schema.NodeTypeCondition || outcome.Status != engine.NodeEvaluated {
		return ""
	}
	if result, _ := outcome.Output["result"].(bool); result {
		return "true"
	}
	return "false"
}

// buildLevels assigns every node the length of its longest path from a
// root. Nodes on a cycle are placed after the parents already levelled.
func buildLevels(g *graph.Graph, order []string) [][]string {
	level := make(map[string]int, len(order))
	var levels [][]string
	for _, id := range order {
		l := 0
		for _, p := range g.Parents(id) {
			if pl, ok := level[p]; ok && pl+1 > l {
				l = pl + 1
			}
		}
		level[id] = l
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], id)
	}

	// Drop empty levels; a cycle can leave gaps.
	out := levels[:0]
	for _, lv := range levels {
		if len(lv) > 0 {
			out = append(out, lv)
		}
	}
	return out
}

// titleOf generates a diagram title from workflow metadata.
func titleOf(wf *schema.Workflow) string {
	switch {
	case wf.Name != "":
		return wf.Name
	case wf.ID != "":
		return wf.ID
	default:
		return "Workflow"
	}
}
