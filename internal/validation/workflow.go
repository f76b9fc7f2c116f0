// Package validation checks workflow graphs before they are saved or
// evaluated. Problems are reported as diagnostics; validation itself only
// fails when its own schemas cannot be built.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/filter"
	"github.com/rendis/ruleflow/internal/graph"
	"github.com/rendis/ruleflow/internal/nodes"
	"github.com/rendis/ruleflow/pkg/schema"
)

// Validator runs the validation pipeline:
//  1. Structural (JSON Schema, raw documents only)
//  2. Per-node semantics (node ids, kind checks, expression compile)
//  3. References ({{ }} references resolve to ancestor variables)
//  4. Graph (dangling edges, cycles)
//
// It is safe for concurrent use.
type Validator struct {
	structure *structureChecker
	engines   *expressions.Engines
}

// New creates a Validator with the workflow schema and the condition
// expression engines ready.
func New() (*Validator, error) {
	sc, err := newStructureChecker()
	if err != nil {
		return nil, err
	}
	engines, err := expressions.NewEngines()
	if err != nil {
		return nil, err
	}
	return &Validator{structure: sc, engines: engines}, nil
}

// ValidateDocument validates a raw graph document. Structural errors stop
// the pipeline and the returned workflow is nil; otherwise the decoded
// workflow is returned with the diagnostics of Validate.
func (v *Validator) ValidateDocument(raw []byte) (*schema.Workflow, schema.Diagnostics) {
	diags := v.structure.checkDocument(raw)
	if !diags.Valid() {
		return nil, diags
	}

	var wf schema.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		diags.AddError("", "", schema.KindStructure, fmt.Sprintf("cannot decode workflow: %s", err))
		return nil, diags
	}

	diags.Merge(v.Validate(&wf))
	return &wf, diags
}

// Validate runs the semantic, reference and graph stages on a decoded
// workflow.
func (v *Validator) Validate(wf *schema.Workflow) schema.Diagnostics {
	var diags schema.Diagnostics
	if wf == nil {
		diags.AddError("", "", schema.KindStructure, "workflow is nil")
		return diags
	}

	g := graph.New(wf.Nodes, wf.Edges)

	for i, node := range wf.Nodes {
		if !validateIdentity(&diags, wf.Nodes, i) {
			continue
		}
		kind, err := nodes.Decode(node)
		if err != nil {
			diags.AddError(node.ID, "data", schema.KindStructure, err.Error())
			continue
		}
		v.validateKind(&diags, kind)
		validateReferences(&diags, g, kind)
		validateReferencedOperator(&diags, g, kind)
	}

	validateGraph(&diags, g, wf.Edges)
	return diags
}

// ValidateEvent checks that the catalog fields of event carry their
// declared types. A nil catalog means the trigger event catalog.
func (v *Validator) ValidateEvent(event map[string]any, fields schema.FieldTypes) schema.Diagnostics {
	if fields == nil {
		fields = nodes.EventFieldTypes()
	}
	return v.structure.checkEvent(event, fields)
}

// validateIdentity reports empty and duplicate ids. Only the first node with
// a given id is validated further.
func validateIdentity(diags *schema.Diagnostics, all []schema.WorkflowNode, i int) bool {
	node := all[i]
	if node.ID == "" {
		diags.AddError("", fmt.Sprintf("nodes[%d].id", i), schema.KindStructure, "node has no id")
		return false
	}
	for j := 0; j < i; j++ {
		if all[j].ID == node.ID {
			diags.AddError(node.ID, "id", schema.KindStructure,
				fmt.Sprintf("duplicate node id %q (nodes[%d] and nodes[%d])", node.ID, j, i))
			return false
		}
	}
	return true
}

func (v *Validator) validateKind(diags *schema.Diagnostics, kind nodes.Kind) {
	kind.Validate(diags)

	cond, ok := kind.(*nodes.Condition)
	if !ok || !cond.UsesExpression() || cond.Data.Expression == "" {
		return
	}
	if _, known := v.engines.Get(cond.Data.Language); !known {
		return // reported by the kind itself
	}
	if err := v.engines.Validate(cond.Data.Language, cond.Data.Expression); err != nil {
		diags.AddError(cond.ID, "expression", schema.KindInvalidExpression, err.Error())
	}
}

// --- References ---

// template is a string of node data that may hold {{ }} references.
type template struct {
	field string
	text  string
}

func validateReferences(diags *schema.Diagnostics, g *graph.Graph, kind nodes.Kind) {
	templates := templatesOf(kind)
	if len(templates) == 0 {
		return
	}

	ancestors := make(map[string]bool)
	for _, id := range g.Ancestors(kind.NodeID()) {
		ancestors[id] = true
	}

	for _, tpl := range templates {
		for _, loc := range expressions.References(tpl.text) {
			if loc.Err != nil {
				diags.AddError(kind.NodeID(), tpl.field, schema.KindMalformedExpression, loc.Err.Error())
				continue
			}
			checkReference(diags, g, kind.NodeID(), tpl.field, loc.Ref, ancestors)
		}
	}
}

func checkReference(diags *schema.Diagnostics, g *graph.Graph, nodeID, field string, ref expressions.Reference, ancestors map[string]bool) {
	if ref.Namespace != expressions.NamespaceNode {
		return
	}

	target, ok := g.Node(ref.NodeID)
	switch {
	case !ok:
		diags.AddError(nodeID, field, schema.KindUnreachableReference,
			fmt.Sprintf("%s references node %q, which does not exist", ref, ref.NodeID))
		return
	case !ancestors[ref.NodeID]:
		diags.AddError(nodeID, field, schema.KindUnreachableReference,
			fmt.Sprintf("%s references node %q, which is not upstream of %q", ref, ref.NodeID, nodeID))
		return
	}

	if ref.Path == "" {
		return
	}
	if !nodes.HasVariable(nodes.ExposedVariables(*target), ref.Path) {
		diags.AddWarning(nodeID, field, schema.KindUnknownVariable,
			fmt.Sprintf("node %q does not expose %q", ref.NodeID, ref.Path))
	}
}

// validateReferencedOperator applies the operator/type check to a condition
// whose field is a reference to an upstream variable.
func validateReferencedOperator(diags *schema.Diagnostics, g *graph.Graph, kind nodes.Kind) {
	cond, ok := kind.(*nodes.Condition)
	if !ok || cond.UsesExpression() || !filter.Known(cond.Data.Operator) {
		return
	}
	ft, ok := expressions.ReferencedType(g, cond.Data.Field)
	if !ok || filter.IsApplicable(cond.Data.Operator, ft) {
		return
	}
	diags.AddError(cond.ID, "operator", schema.KindInvalidOperator,
		fmt.Sprintf("operator %q is not applicable to %s field %q", cond.Data.Operator, ft, cond.Data.Field))
}

// templatesOf lists the strings of a node that are resolved at evaluation
// time, with their diagnostic field names.
func templatesOf(kind nodes.Kind) []template {
	var out []template
	switch n := kind.(type) {
	case *nodes.Trigger:
		for i, rule := range n.Data.Filters {
			out = appendScalar(out, fmt.Sprintf("filters[%d].value", i), rule.Value)
		}
	case *nodes.Condition:
		if expressions.IsExpression(n.Data.Field) {
			out = append(out, template{field: "field", text: n.Data.Field})
		}
		out = appendScalar(out, "value", n.Data.Value)
	case *nodes.Action:
		out = appendJSON(out, "config", n.Data.Config)
	}
	return out
}

func appendScalar(out []template, field string, v schema.Scalar) []template {
	switch v.Kind() {
	case schema.ScalarString:
		if expressions.IsExpression(v.Text()) {
			out = append(out, template{field: field, text: v.Text()})
		}
	case schema.ScalarList:
		for i, item := range v.Items() {
			out = appendScalar(out, fmt.Sprintf("%s[%d]", field, i), item)
		}
	}
	return out
}

func appendJSON(out []template, field string, raw json.RawMessage) []template {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !bytes.Contains(raw, []byte("{{")) {
		return out
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return out // reported by the kind itself
	}
	return appendLeaves(out, field, doc)
}

func appendLeaves(out []template, field string, v any) []template {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = appendLeaves(out, field+"."+k, val[k])
		}
	case []any:
		for i, item := range val {
			out = appendLeaves(out, fmt.Sprintf("%s[%d]", field, i), item)
		}
	case string:
		if expressions.IsExpression(val) {
			out = append(out, template{field: field, text: val})
		}
	}
	return out
}

// --- Graph ---

func validateGraph(diags *schema.Diagnostics, g *graph.Graph, edges []schema.WorkflowEdge) {
	for _, i := range g.DanglingEdges() {
		e := edges[i]
		diags.AddWarning("", fmt.Sprintf("edges[%d]", i), schema.KindDanglingEdge,
			fmt.Sprintf("edge %s -> %s references a missing node", e.Source, e.Target))
	}
	for _, id := range g.Cyclic() {
		diags.AddWarning(id, "", schema.KindCycle, fmt.Sprintf("node %q is part of a cycle", id))
	}
}
