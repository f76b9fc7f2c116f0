package diagram

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rendis/ruleflow/internal/engine"
	"github.com/rendis/ruleflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test workflow builders ---

func node(id string, typ schema.NodeType, data string) schema.WorkflowNode {
	return schema.WorkflowNode{ID: id, Type: typ, Data: json.RawMessage(data)}
}

func alertWorkflow() *schema.Workflow {
	return &schema.Workflow{
		ID:   "wf-1",
		Name: "Large BTC deposits",
		Nodes: []schema.WorkflowNode{
			node("action1", schema.NodeTypeAction, `{"actionType": "freeze_order"}`),
			node("trigger1", schema.NodeTypeTrigger, `{"label": "Deposit", "filters": [{"field": "amount", "operator": "gt", "value": 10000}]}`),
			node("cond1", schema.NodeTypeCondition, `{"field": "currency", "operator": "eq", "value": "BTC"}`),
			node("note", schema.NodeTypeAction, `{"label": "Notify compliance", "actionType": "notify"}`),
		},
		Edges: []schema.WorkflowEdge{
			{Source: "trigger1", Target: "cond1"},
			{Source: "cond1", Target: "action1"},
			{Source: "trigger1", Target: "note"},
			{Source: "cond1", Target: "ghost"},
		},
	}
}

func evaluate(t *testing.T, wf *schema.Workflow, event map[string]any) *engine.Report {
	t.Helper()
	e, err := engine.New(engine.Options{})
	require.NoError(t, err)
	report, err := e.Evaluate(context.Background(), wf, event, nil)
	require.NoError(t, err)
	return report
}

// --- Tests ---

func TestBuild_Structure(t *testing.T) {
	model, err := Build(alertWorkflow(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Large BTC deposits", model.Title)
	require.Len(t, model.Nodes, 4)
	assert.Equal(t, "trigger1", model.Nodes[0].ID)
	assert.Equal(t, NodeKindTrigger, model.Nodes[0].Kind)
	assert.Equal(t, "trigger1\n(Deposit)", model.Nodes[0].Label)

	labels := map[string]string{}
	for _, n := range model.Nodes {
		labels[n.ID] = n.Label
		assert.Nil(t, n.Status)
	}
	assert.Equal(t, "action1\n(freeze_order)", labels["action1"])
	assert.Equal(t, "note\n(Notify compliance)", labels["note"])
	assert.Equal(t, "cond1", labels["cond1"])

	// The edge to the missing node is dropped.
	assert.ElementsMatch(t, []Edge{
		{From: "trigger1", To: "cond1"},
		{From: "trigger1", To: "note"},
		{From: "cond1", To: "action1"},
	}, model.Edges)

	require.Len(t, model.Levels, 3)
	assert.Equal(t, []string{"trigger1"}, model.Levels[0])
	assert.ElementsMatch(t, []string{"cond1", "note"}, model.Levels[1])
	assert.Equal(t, []string{"action1"}, model.Levels[2])
}

func TestBuild_Title(t *testing.T) {
	model, err := Build(&schema.Workflow{ID: "wf-9"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "wf-9", model.Title)
	assert.Empty(t, model.Nodes)

	model, err = Build(&schema.Workflow{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Workflow", model.Title)
}

func TestBuild_NilWorkflow(t *testing.T) {
	_, err := Build(nil, nil)
	assert.Error(t, err)
}

func TestBuild_WithReport(t *testing.T) {
	wf := alertWorkflow()
	report := evaluate(t, wf, map[string]any{"amount": 15000.0, "currency": "ETH"})

	model, err := Build(wf, report)
	require.NoError(t, err)

	status := map[string]*StatusOverlay{}
	for _, n := range model.Nodes {
		status[n.ID] = n.Status
	}
	assert.Equal(t, StatusFired, status["trigger1"].Status)
	assert.Equal(t, StatusRejected, status["cond1"].Status)
	assert.Equal(t, "BTC", status["cond1"].Detail)
	assert.Equal(t, StatusBlocked, status["action1"].Status)
	assert.Equal(t, StatusEligible, status["note"].Status)

	for _, e := range model.Edges {
		if e.From == "cond1" {
			assert.Equal(t, "false", e.Label)
		} else {
			assert.Empty(t, e.Label)
		}
	}
}

func TestBuild_SkippedAndIdle(t *testing.T) {
	wf := &schema.Workflow{
		Nodes: []schema.WorkflowNode{
			node("t1", schema.NodeTypeTrigger, `{"filters": [{"field": "amount", "operator": "gt", "value": 10}]}`),
			node("t2", schema.NodeTypeTrigger, `{"enabled": false}`),
			node("x", "webhook", `{}`),
		},
	}
	report := evaluate(t, wf, map[string]any{"amount": 1.0})

	model, err := Build(wf, report)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, model.Nodes[0].Status.Status)
	assert.Equal(t, StatusSkipped, model.Nodes[1].Status.Status)
	assert.Equal(t, StatusSkipped, model.Nodes[2].Status.Status)
	assert.Equal(t, NodeKindUnknown, model.Nodes[2].Kind)
	assert.Equal(t, "x\n(webhook)", model.Nodes[2].Label)
}

func TestBuild_CycleTerminates(t *testing.T) {
	wf := &schema.Workflow{
		Nodes: []schema.WorkflowNode{
			node("t", schema.NodeTypeTrigger, `{}`),
			node("a", schema.NodeTypeAction, `{"actionType": "x"}`),
			node("b", schema.NodeTypeAction, `{"actionType": "y"}`),
		},
		Edges: []schema.WorkflowEdge{
			{Source: "t", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	model, err := Build(wf, nil)
	require.NoError(t, err)
	assert.Len(t, model.Nodes, 3)

	var placed []string
	for _, lv := range model.Levels {
		placed = append(placed, lv...)
	}
	assert.ElementsMatch(t, []string{"t", "a", "b"}, placed)
}
