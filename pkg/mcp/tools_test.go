package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/ruleflow/internal/engine"
	"github.com/rendis/ruleflow/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

func newTestServer(t *testing.T) *RuleflowServer {
	t.Helper()
	v, err := validation.New()
	require.NoError(t, err)
	e, err := engine.New(engine.Options{})
	require.NoError(t, err)
	return NewRuleflowServer(RuleflowServerDeps{
		Evaluator: e,
		Validator: v,
		Env:       map[string]string{"LIMIT": "50000", "REGION": "eu"},
	})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, result)
	require.False(t, result.IsError, mcp.GetTextFromContent(result.Content[0]))
	require.NotEmpty(t, result.Content)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(mcp.GetTextFromContent(result.Content[0])), &out))
	return out
}

// sampleWorkflow is the decoded form agents send as the workflow argument.
func sampleWorkflow() map[string]any {
	var wf map[string]any
	err := json.Unmarshal([]byte(`{
		"id": "wf-1",
		"nodes": [
			{"id": "trigger1", "type": "trigger", "data": {"filters": [{"field": "amount", "operator": "gt", "value": 10000}]}},
			{"id": "cond1", "type": "condition", "data": {"field": "{{ $node.trigger1.amount }}", "operator": "lte", "value": "{{ $env.LIMIT }}"}},
			{"id": "action1", "type": "action", "data": {"actionType": "notify", "config": {"message": "Alert for {{ $node.trigger1.amount }} {{ $node.trigger1.currency }}"}}}
		],
		"edges": [
			{"source": "trigger1", "target": "cond1"},
			{"source": "cond1", "target": "action1"}
		]
	}`), &wf)
	if err != nil {
		panic(err)
	}
	return wf
}

// --- ruleflow.evaluate ---

func TestEvaluateTool(t *testing.T) {
	s := newTestServer(t)
	req := buildRequest("ruleflow.evaluate", map[string]any{
		"workflow": sampleWorkflow(),
		"event":    map[string]any{"amount": 15000.0, "currency": "BTC"},
	})

	result, err := s.handleEvaluate(context.Background(), req)
	require.NoError(t, err)
	out := decodeResult(t, result)

	assert.Equal(t, true, out["triggered"])
	assert.Equal(t, "wf-1", out["workflowId"])
	assert.NotEmpty(t, out["evaluationId"])

	nodes := out["nodes"].([]any)
	require.Len(t, nodes, 3)
	action := nodes[2].(map[string]any)
	assert.Equal(t, "action1", action["nodeId"])
	assert.Equal(t, true, action["eligible"])
	assert.Equal(t, "Alert for 15000 BTC", action["config"].(map[string]any)["message"])
}

func TestEvaluateTool_EnvOverride(t *testing.T) {
	s := newTestServer(t)
	req := buildRequest("ruleflow.evaluate", map[string]any{
		"workflow": sampleWorkflow(),
		"event":    map[string]any{"amount": 15000.0},
		"env":      map[string]any{"LIMIT": 100},
	})

	result, err := s.handleEvaluate(context.Background(), req)
	require.NoError(t, err)
	out := decodeResult(t, result)

	cond := out["nodes"].([]any)[1].(map[string]any)
	assert.Equal(t, false, cond["output"].(map[string]any)["result"])
	// The server environment is not modified by a call.
	assert.Equal(t, "50000", s.env["LIMIT"])
}

func TestEvaluateTool_Errors(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleEvaluate(context.Background(), buildRequest("ruleflow.evaluate", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleEvaluate(context.Background(), buildRequest("ruleflow.evaluate", map[string]any{
		"workflow": map[string]any{"nodes": "not-a-list"},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	bare := NewRuleflowServer(RuleflowServerDeps{})
	result, err = bare.handleEvaluate(context.Background(), buildRequest("ruleflow.evaluate", map[string]any{
		"workflow": sampleWorkflow(),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- ruleflow.resolve ---

func TestResolveTool_Live(t *testing.T) {
	s := newTestServer(t)
	req := buildRequest("ruleflow.resolve", map[string]any{
		"template": "{{ $node.t.amount }} in {{ $env.REGION }}, {{ $node.t.missing }}",
		"nodes":    map[string]any{"t": map[string]any{"amount": 42.5}},
		"node_id":  "a",
		"field":    "message",
	})

	result, err := s.handleResolve(context.Background(), req)
	require.NoError(t, err)
	out := decodeResult(t, result)

	assert.Equal(t, "42.5 in eu, <value>", out["value"])
	assert.Equal(t, 2.0, out["resolved"])
	diags := out["diagnostics"].([]any)
	require.Len(t, diags, 1)
	assert.Equal(t, "unresolved_expression", diags[0].(map[string]any)["kind"])
	assert.Equal(t, "message", diags[0].(map[string]any)["field"])
}

func TestResolveTool_PreviewFromWorkflow(t *testing.T) {
	s := newTestServer(t)
	req := buildRequest("ruleflow.resolve", map[string]any{
		"template": "Alert for {{ $node.trigger1.amount }} {{ $node.trigger1.currency }} ({{ $node.ghost.x }})",
		"workflow": sampleWorkflow(),
		"node_id":  "action1",
		"mode":     "preview",
	})

	result, err := s.handleResolve(context.Background(), req)
	require.NoError(t, err)
	out := decodeResult(t, result)

	assert.Equal(t, "Alert for 15000 BTC (<value>)", out["value"])
	assert.Nil(t, out["diagnostics"])
}

func TestResolveTool_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []map[string]any{
		{},
		{"template": "x", "mode": "draft"},
		{"template": "x", "nodes": map[string]any{"t": 5}},
	}
	for _, args := range tests {
		result, err := s.handleResolve(context.Background(), buildRequest("ruleflow.resolve", args))
		require.NoError(t, err)
		assert.True(t, result.IsError, args)
	}
}

// --- ruleflow.variables ---

func TestVariablesTool(t *testing.T) {
	s := newTestServer(t)
	req := buildRequest("ruleflow.variables", map[string]any{
		"workflow": sampleWorkflow(),
		"node_id":  "action1",
	})

	result, err := s.handleVariables(context.Background(), req)
	require.NoError(t, err)
	out := decodeResult(t, result)

	available := out["available"].([]any)
	require.Len(t, available, 2)
	cond := available[0].(map[string]any)
	assert.Equal(t, "cond1", cond["nodeId"])
	first := cond["variables"].([]any)[0].(map[string]any)
	assert.Equal(t, "{{ $node.cond1.result }}", first["insertText"])
	assert.Equal(t, "boolean", first["type"])
}

func TestVariablesTool_RootAndUnknownNode(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleVariables(context.Background(), buildRequest("ruleflow.variables", map[string]any{
		"workflow": sampleWorkflow(),
		"node_id":  "trigger1",
	}))
	require.NoError(t, err)
	assert.Empty(t, decodeResult(t, result)["available"])

	result, err = s.handleVariables(context.Background(), buildRequest("ruleflow.variables", map[string]any{
		"workflow": sampleWorkflow(),
		"node_id":  "ghost",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- ruleflow.validate ---

func TestValidateTool(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleValidate(context.Background(), buildRequest("ruleflow.validate", map[string]any{
		"workflow": sampleWorkflow(),
	}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, true, out["valid"])
	assert.Empty(t, out["diagnostics"])

	broken := sampleWorkflow()
	broken["nodes"].([]any)[2].(map[string]any)["data"].(map[string]any)["config"] = map[string]any{
		"text": "{{ $node.nowhere.x }}",
	}
	result, err = s.handleValidate(context.Background(), buildRequest("ruleflow.validate", map[string]any{
		"workflow": broken,
	}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	assert.Equal(t, false, out["valid"])
	assert.Equal(t, 1.0, out["errors"])
	diag := out["diagnostics"].([]any)[0].(map[string]any)
	assert.Equal(t, "unreachable_reference", diag["kind"])
	assert.Equal(t, "action1", diag["nodeId"])
}

func TestValidateTool_Errors(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleValidate(context.Background(), buildRequest("ruleflow.validate", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	bare := NewRuleflowServer(RuleflowServerDeps{})
	result, err = bare.handleValidate(context.Background(), buildRequest("ruleflow.validate", map[string]any{
		"workflow": sampleWorkflow(),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- ruleflow.operators ---

func TestOperatorsTool(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleOperators(context.Background(), buildRequest("ruleflow.operators", map[string]any{}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Len(t, out["operators"], 14)
	assert.Len(t, out["fields"], 10)

	result, err = s.handleOperators(context.Background(), buildRequest("ruleflow.operators", map[string]any{
		"field_type": "boolean",
	}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	ops := out["operators"].([]any)
	require.Len(t, ops, 2)
	assert.Equal(t, "eq", ops[0].(map[string]any)["operator"])
	assert.Equal(t, "neq", ops[1].(map[string]any)["operator"])

	result, err = s.handleOperators(context.Background(), buildRequest("ruleflow.operators", map[string]any{
		"field_type": "date",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- ruleflow.diagram ---

func TestDiagramTool(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleDiagram(context.Background(), buildRequest("ruleflow.diagram", map[string]any{
		"workflow": sampleWorkflow(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	text := mcp.GetTextFromContent(result.Content[0])
	assert.Contains(t, text, "graph TD")
	assert.Contains(t, text, "trigger1 --> cond1")
	assert.NotContains(t, text, "class trigger1")

	result, err = s.handleDiagram(context.Background(), buildRequest("ruleflow.diagram", map[string]any{
		"workflow": sampleWorkflow(),
		"event":    map[string]any{"amount": 15000.0, "currency": "BTC"},
		"format":   "ascii",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	text = mcp.GetTextFromContent(result.Content[0])
	assert.Contains(t, text, "[FIRED]")
	assert.Contains(t, text, "[RUN]")
	assert.Contains(t, text, "cond1 ─→ action1 (true)")
}

func TestDiagramTool_Errors(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleDiagram(context.Background(), buildRequest("ruleflow.diagram", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleDiagram(context.Background(), buildRequest("ruleflow.diagram", map[string]any{
		"workflow": sampleWorkflow(),
		"format":   "png",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
