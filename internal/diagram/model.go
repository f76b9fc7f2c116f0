// Package diagram renders workflow graphs, optionally overlaid with the
// outcome of an evaluation, as Mermaid, ASCII or Graphviz images.
package diagram

// NodeKind classifies a diagram node by its workflow node type.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindCondition NodeKind = "condition"
	NodeKindAction    NodeKind = "action"
	NodeKindUnknown   NodeKind = "unknown"
)

// Overlay statuses derived from an evaluation report.
const (
	StatusFired    = "fired"    // trigger passed its filters
	StatusIdle     = "idle"     // trigger evaluated but did not fire
	StatusPassed   = "passed"   // condition held
	StatusRejected = "rejected" // condition did not hold
	StatusEligible = "eligible" // action would run
	StatusBlocked  = "blocked"  // action would not run
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single workflow node in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the evaluation outcome of a node.
type StatusOverlay struct {
	Status string
	Detail string // e.g. the compared value of a condition
}

// Edge represents a connection between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}
