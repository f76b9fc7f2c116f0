package graph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rendis/ruleflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func edges(pairs ...string) []schema.WorkflowEdge {
	out := make([]schema.WorkflowEdge, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, schema.WorkflowEdge{Source: pairs[i], Target: pairs[i+1]})
	}
	return out
}

func nodes(ids ...string) []schema.WorkflowNode {
	out := make([]schema.WorkflowNode, len(ids))
	for i, id := range ids {
		out[i] = schema.WorkflowNode{ID: id, Type: schema.NodeTypeAction}
	}
	return out
}

// --- Ancestors ---

func TestAncestors_Chain(t *testing.T) {
	e := edges("trigger1", "cond1", "cond1", "action1")
	assert.Equal(t, []string{"cond1", "trigger1"}, Ancestors("action1", e))
	assert.Equal(t, []string{"trigger1"}, Ancestors("cond1", e))
	assert.Empty(t, Ancestors("trigger1", e))
}

func TestAncestors_TwoNodeCycle(t *testing.T) {
	e := edges("A", "B", "B", "A")
	assert.Equal(t, []string{"B"}, Ancestors("A", e))
	assert.Equal(t, []string{"A"}, Ancestors("B", e))
}

func TestAncestors_SelfLoopExcludesQueried(t *testing.T) {
	e := edges("A", "A", "X", "A")
	assert.Equal(t, []string{"X"}, Ancestors("A", e))
}

func TestAncestors_DiamondNoDuplicates(t *testing.T) {
	e := edges("t", "a", "t", "b", "a", "c", "b", "c", "a", "c")
	assert.Equal(t, []string{"a", "b", "t"}, Ancestors("c", e))
}

func TestAncestors_UnknownNode(t *testing.T) {
	assert.Empty(t, Ancestors("ghost", edges("A", "B")))
	assert.Empty(t, Ancestors("A", nil))
}

func TestAncestors_Concurrent(t *testing.T) {
	e := edges("A", "B", "B", "C", "C", "A", "D", "C")
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.ElementsMatch(t, []string{"B", "A", "D"}, Ancestors("C", e))
		}()
	}
	wg.Wait()
}

// --- Graph ---

func TestGraph_DanglingEdgesIgnored(t *testing.T) {
	g := New(nodes("t", "a"), edges("t", "a", "ghost", "a", "a", "missing"))

	assert.Equal(t, []int{1, 2}, g.DanglingEdges())
	assert.Equal(t, []string{"t"}, g.Ancestors("a"))
	assert.Empty(t, g.Descendants("a"))

	// The free function still walks through whatever the edges say.
	assert.Equal(t, []string{"t", "ghost"}, Ancestors("a", edges("t", "a", "ghost", "a")))
}

func TestGraph_DuplicateIDsFirstWins(t *testing.T) {
	ns := nodes("a", "a", "b")
	ns[1].Type = schema.NodeTypeTrigger
	g := New(ns, nil)

	assert.Equal(t, 2, g.Len())
	n, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, schema.NodeTypeAction, n.Type)
}

func TestGraph_ParentsChildrenRoots(t *testing.T) {
	g := New(nodes("t1", "t2", "c", "a"), edges("t1", "c", "t2", "c", "t1", "c", "c", "a"))

	assert.Equal(t, []string{"t1", "t2"}, g.Parents("c"))
	assert.Equal(t, []string{"c"}, g.Children("t1"))
	assert.Equal(t, []string{"t1", "t2"}, g.Roots())
	assert.True(t, g.IsAncestor("t2", "a"))
	assert.False(t, g.IsAncestor("a", "t2"))
	assert.Equal(t, []string{"c", "a"}, g.Descendants("t1"))
}

func TestGraph_TopologicalOrder(t *testing.T) {
	g := New(nodes("a", "t", "c"), edges("t", "c", "c", "a"))
	order, blocked := g.TopologicalOrder()
	assert.Equal(t, []string{"t", "c", "a"}, order)
	assert.Empty(t, blocked)
}

func TestGraph_TopologicalOrderWithCycle(t *testing.T) {
	g := New(nodes("t", "x", "y", "z"), edges("t", "x", "x", "y", "y", "x", "y", "z"))
	order, blocked := g.TopologicalOrder()

	assert.Equal(t, []string{"t", "x", "y", "z"}, order)
	assert.Equal(t, []string{"x", "y", "z"}, blocked)
	assert.Equal(t, []string{"x", "y"}, g.Cyclic())
}

func TestGraph_SelfLoopIsCyclic(t *testing.T) {
	g := New(nodes("a", "b"), edges("a", "a", "a", "b"))
	assert.Equal(t, []string{"a"}, g.Cyclic())
	assert.Empty(t, g.Ancestors("a"))
}

func TestGraph_LargeChainTerminates(t *testing.T) {
	const n = 500
	ids := make([]string, n)
	var pairs []string
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("n%d", i)
		if i > 0 {
			pairs = append(pairs, ids[i-1], ids[i])
		}
	}
	pairs = append(pairs, ids[n-1], ids[0])

	g := New(nodes(ids...), edges(pairs...))
	assert.Len(t, g.Ancestors(ids[0]), n-1)
	assert.Len(t, g.Cyclic(), n)
}
