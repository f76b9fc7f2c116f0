package expressions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rendis/ruleflow/internal/nodes"
	"github.com/rendis/ruleflow/pkg/schema"
)

// DefaultPlaceholder replaces a reference that cannot be resolved when its
// type is unknown.
const DefaultPlaceholder = "<value>"

// Mode selects how unresolved references are reported.
type Mode uint8

const (
	// Live resolves against a real evaluation. Every unresolved reference is
	// an error diagnostic.
	Live Mode = iota
	// Preview renders templates in the editor. Unresolved references are
	// silently replaced by placeholders.
	Preview
)

func (m Mode) String() string {
	if m == Preview {
		return "preview"
	}
	return "live"
}

// ParseMode parses "live" or "preview".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "live":
		return Live, nil
	case "preview":
		return Preview, nil
	}
	return Live, schema.NewErrorf(schema.ErrCodeInvalidInput, "unknown resolution mode %q; expected live or preview", s)
}

// Options describe one resolution call.
type Options struct {
	Mode Mode

	// NodeID and Field locate the template for diagnostics.
	NodeID string
	Field  string

	// Variables maps node IDs to the variables they expose. When set,
	// placeholders are typed, e.g. <number>.
	Variables map[string][]schema.VariableDescriptor
}

// Result is the outcome of resolving one template.
type Result struct {
	Value       string             `json:"value"`
	Resolved    int                `json:"resolved"`
	Unresolved  []string           `json:"unresolved,omitempty"`
	Diagnostics schema.Diagnostics `json:"diagnostics,omitempty"`
}

// Resolver substitutes {{ }} references. It holds no per-call state and is
// safe for concurrent use.
type Resolver struct {
	placeholder string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPlaceholder overrides DefaultPlaceholder. Empty values are ignored.
func WithPlaceholder(p string) ResolverOption {
	return func(r *Resolver) {
		if p != "" {
			r.placeholder = p
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{placeholder: DefaultPlaceholder}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve substitutes every span of template in place. A span that cannot
// be resolved becomes a placeholder without stopping the others. A template
// without an opening marker is returned unchanged.
func (r *Resolver) Resolve(template string, ctx *ExpressionContext, opts Options) *Result {
	res := &Result{Value: template}
	if !strings.Contains(template, openMarker) {
		return res
	}

	var b strings.Builder
	b.Grow(len(template))
	last := 0
	for _, sp := range Scan(template) {
		b.WriteString(template[last:sp.Start])
		last = sp.End
		_, _, text := r.resolveSpan(template, sp, ctx, opts, res)
		b.WriteString(text)
	}
	b.WriteString(template[last:])

	res.Value = b.String()
	return res
}

// ResolveValue resolves template like Resolve, except that a template made of
// exactly one span yields the referenced value with its type intact.
func (r *Resolver) ResolveValue(template string, ctx *ExpressionContext, opts Options) (any, *Result) {
	trimmed := strings.TrimSpace(template)
	spans := Scan(trimmed)
	if len(spans) == 1 && !spans[0].Unclosed && spans[0].Start == 0 && spans[0].End == len(trimmed) {
		res := &Result{}
		v, ok, text := r.resolveSpan(trimmed, spans[0], ctx, opts, res)
		res.Value = text
		if ok {
			return deepCopyAny(v), res
		}
		return text, res
	}
	res := r.Resolve(template, ctx, opts)
	return res.Value, res
}

// resolveSpan resolves one closed or unclosed span, recording the outcome in
// res. It returns the value, whether it resolved and the text to substitute.
func (r *Resolver) resolveSpan(template string, sp Span, ctx *ExpressionContext, opts Options, res *Result) (any, bool, string) {
	raw := sp.Raw(template)
	if sp.Unclosed {
		r.report(res, opts, schema.KindMalformedExpression, fmt.Sprintf("unclosed {{ in %q", raw))
		return nil, false, raw
	}

	ref, err := ParseReference(sp.Expr)
	if err != nil {
		res.Unresolved = append(res.Unresolved, raw)
		r.report(res, opts, schema.KindMalformedExpression, err.Error())
		return nil, false, r.placeholder
	}

	v, ok := ctx.Lookup(ref)
	if !ok {
		res.Unresolved = append(res.Unresolved, raw)
		if opts.Mode == Live {
			res.Diagnostics.AddError(opts.NodeID, opts.Field, schema.KindUnresolvedExpression,
				unresolvedMessage(ref, ctx))
		}
		return nil, false, r.placeholderFor(ref, opts)
	}

	res.Resolved++
	return v, true, Stringify(v)
}

// report records a malformed span: an error in live mode, a warning in
// preview mode.
func (r *Resolver) report(res *Result, opts Options, kind schema.DiagnosticKind, msg string) {
	if opts.Mode == Live {
		res.Diagnostics.AddError(opts.NodeID, opts.Field, kind, msg)
		return
	}
	res.Diagnostics.AddWarning(opts.NodeID, opts.Field, kind, msg)
}

func (r *Resolver) placeholderFor(ref Reference, opts Options) string {
	if ref.Namespace != NamespaceNode || opts.Variables == nil {
		return r.placeholder
	}
	ft, ok := nodes.VariableType(opts.Variables[ref.NodeID], ref.Path)
	if !ok || ft == schema.FieldAny {
		return r.placeholder
	}
	return "<" + string(ft) + ">"
}

func unresolvedMessage(ref Reference, ctx *ExpressionContext) string {
	if ref.Namespace == NamespaceNode {
		if ctx == nil || ctx.Nodes[ref.NodeID] == nil {
			return fmt.Sprintf("cannot resolve {{ %s }}: node %q has no output in this evaluation; available nodes: [%s]",
				ref, ref.NodeID, strings.Join(ctx.NodeIDs(), ", "))
		}
		return fmt.Sprintf("cannot resolve {{ %s }}: path %q not found in node %q output", ref, ref.Path, ref.NodeID)
	}
	return fmt.Sprintf("cannot resolve {{ %s }}: %q is not set", ref, ref.Name)
}

// Stringify renders a resolved value for substitution into text: strings
// as is, numbers without trailing zeros, objects and arrays as JSON.
func Stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return schema.FormatNumber(v)
	case float32:
		return schema.FormatNumber(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case schema.Scalar:
		if v.Kind() == schema.ScalarList {
			return Stringify(v.Any())
		}
		return v.Text()
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// ResolveJSON resolves the string leaves of a JSON document. Keys and
// non-string values are left alone, so the output stays valid JSON. A leaf
// made of exactly one span takes the referenced value's JSON type.
func (r *Resolver) ResolveJSON(raw json.RawMessage, ctx *ExpressionContext, opts Options) (json.RawMessage, schema.Diagnostics, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !bytes.Contains(trimmed, []byte(openMarker)) {
		return raw, nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, schema.NewError(schema.ErrCodeDecode, "template is not valid JSON").
			WithNode(opts.NodeID).WithCause(err)
	}

	var diags schema.Diagnostics
	resolved := r.resolveTree(doc, opts.Field, ctx, opts, &diags)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resolved); err != nil {
		return nil, diags, schema.NewError(schema.ErrCodeInterpolation, "cannot encode resolved JSON").
			WithNode(opts.NodeID).WithCause(err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), diags, nil
}

func (r *Resolver) resolveTree(v any, path string, ctx *ExpressionContext, opts Options, diags *schema.Diagnostics) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = r.resolveTree(item, joinField(path, k), ctx, opts, diags)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.resolveTree(item, fmt.Sprintf("%s[%d]", path, i), ctx, opts, diags)
		}
		return out
	case string:
		if !IsExpression(val) {
			return val
		}
		leafOpts := opts
		leafOpts.Field = path
		resolved, res := r.ResolveValue(val, ctx, leafOpts)
		diags.Merge(res.Diagnostics)
		return resolved
	default:
		return v
	}
}

// ResolveRules returns copies of rules whose values have their references
// resolved. The input rules are never modified.
func (r *Resolver) ResolveRules(rules []schema.FilterRule, ctx *ExpressionContext, opts Options) ([]schema.FilterRule, schema.Diagnostics) {
	var diags schema.Diagnostics
	out := make([]schema.FilterRule, len(rules))
	for i, rule := range rules {
		ruleOpts := opts
		ruleOpts.Field = joinField(opts.Field, fmt.Sprintf("filters[%d].value", i))
		out[i] = r.ResolveRule(rule, ctx, ruleOpts, &diags)
	}
	return out, diags
}

// ResolveRule returns a copy of rule with its value resolved.
func (r *Resolver) ResolveRule(rule schema.FilterRule, ctx *ExpressionContext, opts Options, diags *schema.Diagnostics) schema.FilterRule {
	cp := rule.Clone()
	cp.Value = r.resolveScalar(rule.Value, ctx, opts, diags)
	return cp
}

func (r *Resolver) resolveScalar(v schema.Scalar, ctx *ExpressionContext, opts Options, diags *schema.Diagnostics) schema.Scalar {
	switch v.Kind() {
	case schema.ScalarString:
		if !IsExpression(v.Text()) {
			return v
		}
		resolved, res := r.ResolveValue(v.Text(), ctx, opts)
		diags.Merge(res.Diagnostics)
		return schema.FromAny(resolved)
	case schema.ScalarList:
		items := v.Items()
		for i, item := range items {
			items[i] = r.resolveScalar(item, ctx, opts, diags)
		}
		return schema.List(items...)
	default:
		return v
	}
}

func joinField(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

var defaultResolver = NewResolver()

// Resolve resolves template in live mode with the default placeholder and
// returns the resulting text.
func Resolve(template string, ctx *ExpressionContext) string {
	return defaultResolver.Resolve(template, ctx, Options{}).Value
}
