package engine

import (
	"encoding/json"
	"time"

	"github.com/rendis/ruleflow/internal/filter"
	"github.com/rendis/ruleflow/pkg/schema"
)

// NodeStatus is the terminal state of a node within one evaluation.
type NodeStatus string

const (
	// NodeEvaluated means the node ran and produced an output.
	NodeEvaluated NodeStatus = "evaluated"
	// NodeSkipped means the node was not run: disabled or scheduled
	// triggers and unknown kinds.
	NodeSkipped NodeStatus = "skipped"
	// NodeFailed means the node data could not be decoded.
	NodeFailed NodeStatus = "failed"
)

// Report is the result of evaluating a workflow against one event.
type Report struct {
	EvaluationID string             `json:"evaluationId"`
	WorkflowID   string             `json:"workflowId,omitempty"`
	Triggered    bool               `json:"triggered"`
	Triggers     []TriggerOutcome   `json:"triggers"`
	Nodes        []NodeOutcome      `json:"nodes"`
	Diagnostics  schema.Diagnostics `json:"diagnostics"`
	StartedAt    time.Time          `json:"startedAt"`
	DurationMs   int64              `json:"durationMs"`
}

// TriggerOutcome is the filter result of one trigger node.
type TriggerOutcome struct {
	NodeID    string              `json:"nodeId"`
	Enabled   bool                `json:"enabled"`
	Scheduled bool                `json:"scheduled,omitempty"`
	NextRun   *time.Time          `json:"nextRun,omitempty"`
	Fired     bool                `json:"fired"`
	Rules     []filter.RuleResult `json:"rules,omitempty"`
}

// NodeOutcome records what one node did and what it exposed downstream.
type NodeOutcome struct {
	NodeID string          `json:"nodeId"`
	Type   schema.NodeType `json:"type"`
	Status NodeStatus      `json:"status"`
	Output map[string]any  `json:"output,omitempty"`

	// Eligible and Config are set on action nodes only.
	Eligible bool            `json:"eligible,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Node returns the outcome of nodeID.
func (r *Report) Node(nodeID string) (*NodeOutcome, bool) {
	for i := range r.Nodes {
		if r.Nodes[i].NodeID == nodeID {
			return &r.Nodes[i], true
		}
	}
	return nil, false
}

// Trigger returns the outcome of the trigger nodeID.
func (r *Report) Trigger(nodeID string) (*TriggerOutcome, bool) {
	for i := range r.Triggers {
		if r.Triggers[i].NodeID == nodeID {
			return &r.Triggers[i], true
		}
	}
	return nil, false
}

// EligibleActions returns the ids of the action nodes that would run.
func (r *Report) EligibleActions() []string {
	var out []string
	for _, n := range r.Nodes {
		if n.Type == schema.NodeTypeAction && n.Eligible {
			out = append(out, n.NodeID)
		}
	}
	return out
}
