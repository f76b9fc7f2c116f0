package schema

import "encoding/json"

// Workflow is the node/edge graph persisted by the graph editor.
type Workflow struct {
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Nodes []WorkflowNode `json:"nodes"`
	Edges []WorkflowEdge `json:"edges"`
}

// WorkflowNode is a single node of the graph. Data is kind-specific and is
// decoded lazily so unknown node kinds survive a round trip.
type WorkflowNode struct {
	ID   string          `json:"id"`
	Type NodeType        `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WorkflowEdge is a directed connection from Source to Target.
type WorkflowEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// NodeType enumerates the node kinds known to the engine.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAction    NodeType = "action"
)

// ConditionData is the data block of a condition node. A condition either
// compares Field against Value with Operator, or evaluates Expression in
// Language (cel, expr or jq).
type ConditionData struct {
	Label      string   `json:"label,omitempty"`
	Field      string   `json:"field,omitempty"`
	Operator   Operator `json:"operator,omitempty"`
	Value      Scalar   `json:"value"`
	Language   string   `json:"language,omitempty"`
	Expression string   `json:"expression,omitempty"`
}

// ActionData is the data block of an action node. Config fields may hold
// {{ ... }} expressions; the engine resolves them but never executes the action.
type ActionData struct {
	Label      string          `json:"label,omitempty"`
	ActionType string          `json:"actionType"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// TriggerData is the data block of a trigger node.
type TriggerData struct {
	Label string `json:"label,omitempty"`
	TriggerConfig
}

// VariableDescriptor describes one value a node exposes to its descendants.
type VariableDescriptor struct {
	Path         string    `json:"path"`
	Label        string    `json:"label"`
	Type         FieldType `json:"type"`
	ExampleValue Scalar    `json:"exampleValue"`
}
