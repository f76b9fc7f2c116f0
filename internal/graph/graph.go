// Package graph answers reachability questions over a workflow's node/edge
// graph. Graphs come from the editor and are untrusted: they may contain
// cycles, self loops, duplicate edges and edges to nodes that do not exist.
package graph

import "github.com/rendis/ruleflow/pkg/schema"

// Ancestors returns every node that can reach nodeID by following edges,
// closest first. nodeID itself is never included, even when it sits on a
// cycle. The visited set is local to the call, so concurrent calls over the
// same edges are safe.
func Ancestors(nodeID string, edges []schema.WorkflowEdge) []string {
	incoming := make(map[string][]string, len(edges))
	for _, e := range edges {
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}
	return walk(nodeID, incoming, nil)
}

// walk is a breadth-first traversal of adj from start. keep, when set,
// prunes nodes (and everything only reachable through them).
func walk(start string, adj map[string][]string, keep func(string) bool) []string {
	visited := map[string]bool{start: true}
	queue := []string{start}
	var out []string

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adj[node] {
			if visited[next] {
				continue
			}
			visited[next] = true
			if keep != nil && !keep(next) {
				continue
			}
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}

// Graph is an immutable index over a workflow's nodes and edges.
type Graph struct {
	nodes    map[string]*schema.WorkflowNode
	order    []string // declaration order, duplicates dropped
	incoming map[string][]string
	outgoing map[string][]string
	dangling []int
}

// New indexes nodes and edges. When two nodes share an id the first one
// wins. Edges whose source or target is missing are recorded as dangling
// and take no part in traversal.
func New(nodes []schema.WorkflowNode, edges []schema.WorkflowEdge) *Graph {
	g := &Graph{
		nodes:    make(map[string]*schema.WorkflowNode, len(nodes)),
		order:    make([]string, 0, len(nodes)),
		incoming: make(map[string][]string, len(nodes)),
		outgoing: make(map[string][]string, len(nodes)),
	}

	for i := range nodes {
		n := &nodes[i]
		if _, exists := g.nodes[n.ID]; exists {
			continue
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}

	for i, e := range edges {
		_, srcOK := g.nodes[e.Source]
		_, dstOK := g.nodes[e.Target]
		if !srcOK || !dstOK {
			g.dangling = append(g.dangling, i)
			continue
		}
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e.Target)
		g.incoming[e.Target] = append(g.incoming[e.Target], e.Source)
	}

	return g
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*schema.WorkflowNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns node ids in declaration order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of distinct nodes.
func (g *Graph) Len() int { return len(g.order) }

// Parents returns the direct predecessors of id in edge order.
func (g *Graph) Parents(id string) []string {
	return dedupe(g.incoming[id])
}

// Children returns the direct successors of id in edge order.
func (g *Graph) Children(id string) []string {
	return dedupe(g.outgoing[id])
}

// Ancestors returns the nodes that can reach id, closest first.
func (g *Graph) Ancestors(id string) []string {
	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	return walk(id, g.incoming, nil)
}

// Descendants returns the nodes reachable from id, closest first.
func (g *Graph) Descendants(id string) []string {
	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	return walk(id, g.outgoing, nil)
}

// IsAncestor reports whether candidate can reach id.
func (g *Graph) IsAncestor(candidate, id string) bool {
	for _, a := range g.Ancestors(id) {
		if a == candidate {
			return true
		}
	}
	return false
}

// DanglingEdges returns the indices of edges whose endpoints do not exist.
func (g *Graph) DanglingEdges() []int {
	out := make([]int, len(g.dangling))
	copy(out, g.dangling)
	return out
}

// Roots returns nodes without incoming edges in declaration order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.incoming[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// TopologicalOrder sorts nodes with Kahn's algorithm, breaking ties by
// declaration order. Nodes that sit on or behind a cycle cannot be sorted;
// they are appended in declaration order and also returned as blocked.
func (g *Graph) TopologicalOrder() (order, blocked []string) {
	inDegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.incoming[id])
	}

	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order = make([]string, 0, len(g.order))
	placed := make(map[string]bool, len(g.order))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		placed[node] = true

		for _, next := range g.outgoing[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	for _, id := range g.order {
		if !placed[id] {
			blocked = append(blocked, id)
			order = append(order, id)
		}
	}
	return order, blocked
}

// Cyclic returns the nodes that lie on at least one cycle, in declaration
// order. A self loop counts.
func (g *Graph) Cyclic() []string {
	var out []string
	for _, id := range g.order {
		if g.reachesItself(id) {
			out = append(out, id)
		}
	}
	return out
}

func (g *Graph) reachesItself(id string) bool {
	visited := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.outgoing[node] {
			if next == id {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
