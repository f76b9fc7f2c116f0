package expressions

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/ruleflow/pkg/schema"
)

// ExpressionContext holds everything a {{ }} reference can resolve against
// during one evaluation pass. It is built fresh per pass and never persisted.
type ExpressionContext struct {
	Nodes map[string]map[string]any `json:"nodes"` // node ID -> output
	Env   map[string]string         `json:"env"`
}

// NewContext returns a context over copies of nodes and env.
func NewContext(nodes map[string]map[string]any, env map[string]string) *ExpressionContext {
	ctx := &ExpressionContext{
		Nodes: make(map[string]map[string]any, len(nodes)),
		Env:   copyEnv(env),
	}
	for id, out := range nodes {
		ctx.Nodes[id] = deepCopyMap(out)
	}
	return ctx
}

// Lookup resolves ref. A value that is present but null counts as missing.
func (c *ExpressionContext) Lookup(ref Reference) (any, bool) {
	if c == nil {
		return nil, false
	}
	switch ref.Namespace {
	case NamespaceEnv:
		v, ok := c.Env[ref.Name]
		return v, ok
	case NamespaceNode:
		out, ok := c.Nodes[ref.NodeID]
		if !ok {
			return nil, false
		}
		if len(ref.Segments) == 0 {
			return out, true
		}
		// Direct key lookup first, so output keys with dots still resolve.
		if v, ok := out[ref.Path]; ok {
			return v, v != nil
		}
		v, ok := schema.Lookup(out, ref.Segments)
		return v, ok && v != nil
	}
	return nil, false
}

// Data returns the context in the shape condition engines expect:
// {"node": {id: output}, "env": {name: value}}.
func (c *ExpressionContext) Data() map[string]any {
	nodes := map[string]any{}
	env := map[string]any{}
	if c != nil {
		for id, out := range c.Nodes {
			nodes[id] = deepCopyMap(out)
		}
		for k, v := range c.Env {
			env[k] = v
		}
	}
	return map[string]any{"node": nodes, "env": env}
}

// NodeIDs returns the ids with an output, sorted.
func (c *ExpressionContext) NodeIDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Nodes))
	for id := range c.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ContextBuilder accumulates node outputs during an evaluation pass.
// Outputs are frozen (deep-copied) on insert and cannot be replaced.
type ContextBuilder struct {
	mu    sync.RWMutex
	nodes map[string]map[string]any
	env   map[string]string
}

// NewContextBuilder creates a builder seeded with env, which is copied.
func NewContextBuilder(env map[string]string) *ContextBuilder {
	return &ContextBuilder{
		nodes: make(map[string]map[string]any),
		env:   copyEnv(env),
	}
}

// AddNodeOutput registers the output of a node. A second output for the same
// node is rejected.
func (b *ContextBuilder) AddNodeOutput(nodeID string, output map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.nodes[nodeID]; exists {
		return schema.NewErrorf(schema.ErrCodeInterpolation,
			"node %q output already registered; node outputs are immutable once produced", nodeID).WithNode(nodeID)
	}
	if output == nil {
		output = map[string]any{}
	}
	b.nodes[nodeID] = deepCopyMap(output)
	return nil
}

// AddNodeOutputJSON is AddNodeOutput for a raw JSON object.
func (b *ContextBuilder) AddNodeOutputJSON(nodeID string, raw json.RawMessage) error {
	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return schema.NewErrorf(schema.ErrCodeDecode, "cannot parse node %q output", nodeID).
				WithNode(nodeID).WithCause(err)
		}
	}
	return b.AddNodeOutput(nodeID, out)
}

// Output returns a copy of a registered output.
func (b *ContextBuilder) Output(nodeID string) (map[string]any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out, ok := b.nodes[nodeID]
	if !ok {
		return nil, false
	}
	return deepCopyMap(out), true
}

// Build snapshots every registered output.
func (b *ContextBuilder) Build() *ExpressionContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return NewContext(b.nodes, b.env)
}

// ForNode snapshots only the outputs of ancestors, which is all a node may
// reference.
func (b *ContextBuilder) ForNode(ancestors []string) *ExpressionContext {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ctx := &ExpressionContext{
		Nodes: make(map[string]map[string]any, len(ancestors)),
		Env:   copyEnv(b.env),
	}
	for _, id := range ancestors {
		if out, ok := b.nodes[id]; ok {
			ctx.Nodes[id] = deepCopyMap(out)
		}
	}
	return ctx
}

// EnvFromList builds $env values from KEY=VALUE pairs (os.Environ format).
// With a non-empty prefix only matching keys are kept, prefix stripped.
func EnvFromList(environ []string, prefix string) map[string]string {
	env := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if prefix != "" {
			if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
				continue
			}
			key = strings.TrimPrefix(key, prefix)
		}
		env[key] = value
	}
	return env
}

func copyEnv(env map[string]string) map[string]string {
	cp := make(map[string]string, len(env))
	for k, v := range env {
		cp[k] = v
	}
	return cp
}

// --- Deep copy utilities ---

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value.
// Handles maps, slices, and primitives (which are inherently immutable).
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}
