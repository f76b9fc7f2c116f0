package expressions

import (
	"encoding/json"
	"testing"

	"github.com/rendis/ruleflow/internal/graph"
	"github.com/rendis/ruleflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() *graph.Graph {
	ns := []schema.WorkflowNode{
		{ID: "trigger1", Type: schema.NodeTypeTrigger, Data: json.RawMessage(`{"label":"Order created","filters":[]}`)},
		{ID: "cond1", Type: schema.NodeTypeCondition, Data: json.RawMessage(`{"field":"amount","operator":"gt","value":10000}`)},
		{ID: "hook", Type: "webhook"},
		{ID: "action1", Type: schema.NodeTypeAction, Data: json.RawMessage(`{"actionType":"notify"}`)},
	}
	es := []schema.WorkflowEdge{
		{Source: "trigger1", Target: "cond1"},
		{Source: "cond1", Target: "hook"},
		{Source: "hook", Target: "action1"},
		{Source: "action1", Target: "cond1"},
	}
	return graph.New(ns, es)
}

func TestAvailable_AncestorsClosestFirst(t *testing.T) {
	avail := Available(sampleGraph(), "action1")

	// hook is an ancestor but exposes nothing.
	require.Len(t, avail, 2)
	assert.Equal(t, "cond1", avail[0].NodeID)
	assert.Equal(t, "trigger1", avail[1].NodeID)
	assert.Equal(t, "Order created", avail[1].Label)

	cond := avail[0]
	require.Len(t, cond.Variables, 3)
	assert.Equal(t, "$node.cond1.result", cond.Variables[0].Reference)
	assert.Equal(t, "{{ $node.cond1.result }}", cond.Variables[0].InsertText)
}

func TestAvailable_CycleExcludesSelf(t *testing.T) {
	for _, nv := range Available(sampleGraph(), "cond1") {
		assert.NotEqual(t, "cond1", nv.NodeID)
	}
	assert.Empty(t, Available(sampleGraph(), "trigger1"))
	assert.Empty(t, Available(sampleGraph(), "ghost"))
}

func TestPreviewContext(t *testing.T) {
	avail := Available(sampleGraph(), "action1")
	ctx := PreviewContext(avail, map[string]string{"REGION": "eu"})

	res := NewResolver().Resolve(
		"{{ $node.trigger1.amount }} {{ $node.trigger1.currency }} over {{ $node.cond1.value }}: {{ $node.cond1.result }}",
		ctx, Options{Mode: Preview, Variables: Catalog(avail)})
	assert.Equal(t, "15000 BTC over 10000: true", res.Value)
	assert.Empty(t, res.Diagnostics)
}

func TestPreviewContext_NestedPaths(t *testing.T) {
	avail := []NodeVariables{{
		NodeID: "n",
		Variables: []AvailableVariable{
			{VariableDescriptor: schema.VariableDescriptor{Path: "customer.tier", ExampleValue: schema.String("gold")}},
			{VariableDescriptor: schema.VariableDescriptor{Path: "skipped"}},
		},
	}}
	ctx := PreviewContext(avail, nil)
	assert.Equal(t, "gold", Resolve("{{ $node.n.customer.tier }}", ctx))
	assert.NotContains(t, ctx.Nodes["n"], "skipped")
}

func TestCatalog(t *testing.T) {
	cat := Catalog(Available(sampleGraph(), "action1"))
	require.Contains(t, cat, "trigger1")
	assert.Len(t, cat["trigger1"], 10)
	assert.Equal(t, "result", cat["cond1"][0].Path)
}

func TestReferencedType(t *testing.T) {
	g := sampleGraph()
	tests := []struct {
		field string
		want  schema.FieldType
		ok    bool
	}{
		{"{{ $node.trigger1.amount }}", schema.FieldNumber, true},
		{"  {{ $node.cond1.result }} ", schema.FieldBoolean, true},
		{"{{ $node.action1.actionType }}", schema.FieldString, true},
		{"{{ $node.cond1.value }}", "", false},
		{"{{ $node.trigger1.amount }} EUR", "", false},
		{"{{ $node.trigger1 }}", "", false},
		{"{{ $node.ghost.amount }}", "", false},
		{"{{ $env.LIMIT }}", "", false},
		{"amount", "", false},
	}
	for _, tc := range tests {
		got, ok := ReferencedType(g, tc.field)
		assert.Equal(t, tc.ok, ok, tc.field)
		assert.Equal(t, tc.want, got, tc.field)
	}
}
