// Package nodes defines the closed set of workflow node kinds. Each kind
// knows the variables it exposes to downstream nodes and how to validate its
// own data block.
package nodes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rendis/ruleflow/internal/filter"
	"github.com/rendis/ruleflow/pkg/schema"
	"github.com/robfig/cron/v3"
)

// Condition expression languages.
const (
	LanguageCEL  = "cel"
	LanguageExpr = "expr"
	LanguageJQ   = "jq"
)

// EventSchedule marks a trigger fired by its cron schedule instead of an event.
const EventSchedule = "schedule"

// Kind is implemented by every node kind. The set is closed: only this
// package can add implementations.
type Kind interface {
	// NodeID returns the id of the node the kind was decoded from.
	NodeID() string
	// Type returns the declared node type.
	Type() schema.NodeType
	// Variables returns the values the node exposes to its descendants.
	Variables() []schema.VariableDescriptor
	// Validate appends configuration problems to diags.
	Validate(diags *schema.Diagnostics)

	sealed()
}

// Trigger starts a workflow when an inbound event passes its filters.
type Trigger struct {
	ID   string
	Data schema.TriggerData
}

// Condition compares one value or evaluates one expression.
type Condition struct {
	ID   string
	Data schema.ConditionData
}

// Action is the terminal node. The engine only resolves its config.
type Action struct {
	ID   string
	Data schema.ActionData
}

// Unknown carries a node whose type this build does not recognise.
type Unknown struct {
	ID       string
	NodeType schema.NodeType
	Data     json.RawMessage
}

func (*Trigger) sealed()   {}
func (*Condition) sealed() {}
func (*Action) sealed()    {}
func (*Unknown) sealed()   {}

func (n *Trigger) NodeID() string   { return n.ID }
func (n *Condition) NodeID() string { return n.ID }
func (n *Action) NodeID() string    { return n.ID }
func (n *Unknown) NodeID() string   { return n.ID }

func (*Trigger) Type() schema.NodeType   { return schema.NodeTypeTrigger }
func (*Condition) Type() schema.NodeType { return schema.NodeTypeCondition }
func (*Action) Type() schema.NodeType    { return schema.NodeTypeAction }
func (n *Unknown) Type() schema.NodeType { return n.NodeType }

// Decode turns a raw node into its kind. Unknown types decode to *Unknown
// without error. A malformed data block still yields a usable kind, holding
// whatever decoded, alongside a decode error.
func Decode(node schema.WorkflowNode) (Kind, error) {
	switch node.Type {
	case schema.NodeTypeTrigger:
		t := &Trigger{ID: node.ID}
		t.Data.Enabled = true
		return t, decodeData(node, &t.Data)
	case schema.NodeTypeCondition:
		c := &Condition{ID: node.ID}
		return c, decodeData(node, &c.Data)
	case schema.NodeTypeAction:
		a := &Action{ID: node.ID}
		return a, decodeData(node, &a.Data)
	default:
		return &Unknown{ID: node.ID, NodeType: node.Type, Data: node.Data}, nil
	}
}

func decodeData(node schema.WorkflowNode, into any) error {
	raw := bytes.TrimSpace(node.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return schema.NewErrorf(schema.ErrCodeDecode, "invalid %s data", node.Type).
			WithNode(node.ID).WithCause(err)
	}
	return nil
}

// ExposedVariables returns the variables node exposes. It never fails:
// unknown kinds expose nothing and malformed data exposes the kind's
// defaults.
func ExposedVariables(node schema.WorkflowNode) []schema.VariableDescriptor {
	kind, _ := Decode(node)
	return kind.Variables()
}

// --- Trigger ---

func (n *Trigger) Variables() []schema.VariableDescriptor {
	return EventFields()
}

// IsScheduled reports whether the trigger is driven by a cron schedule.
func (n *Trigger) IsScheduled() bool {
	return n.Data.Event == EventSchedule || n.Data.Schedule != ""
}

// NextRun computes the next time after from at which a scheduled trigger
// fires.
func (n *Trigger) NextRun(from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(n.Data.Schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", n.Data.Schedule, err)
	}
	return schedule.Next(from), nil
}

func (n *Trigger) Validate(diags *schema.Diagnostics) {
	diags.Merge(filter.ValidateRules(n.Data.Filters, EventFieldTypes(), n.ID))

	switch n.Data.DefaultLogic {
	case schema.ChainNone, schema.ChainAnd, schema.ChainOr:
	default:
		diags.AddError(n.ID, "defaultLogic", schema.KindInvalidValue,
			fmt.Sprintf("defaultLogic must be AND or OR, got %q", n.Data.DefaultLogic))
	}

	if !n.IsScheduled() {
		return
	}
	if strings.TrimSpace(n.Data.Schedule) == "" {
		diags.AddError(n.ID, "schedule", schema.KindInvalidSchedule, "schedule trigger has no cron expression")
		return
	}
	if _, err := cron.ParseStandard(n.Data.Schedule); err != nil {
		diags.AddError(n.ID, "schedule", schema.KindInvalidSchedule,
			fmt.Sprintf("invalid cron expression %q: %s", n.Data.Schedule, err))
	}
}

// --- Condition ---

func (n *Condition) Variables() []schema.VariableDescriptor {
	return []schema.VariableDescriptor{
		{Path: "result", Label: "Result", Type: schema.FieldBoolean, ExampleValue: schema.Bool(true)},
		{Path: "field", Label: "Field", Type: schema.FieldString, ExampleValue: schema.String(n.Data.Field)},
		{Path: "value", Label: "Value", Type: schema.FieldAny, ExampleValue: n.Data.Value},
	}
}

// UsesExpression reports whether the condition is an expression in one of
// the supported languages rather than a field comparison.
func (n *Condition) UsesExpression() bool {
	return n.Data.Language != "" || n.Data.Expression != ""
}

// Rule returns the comparison of a field based condition.
func (n *Condition) Rule() schema.FilterRule {
	return schema.FilterRule{Field: n.Data.Field, Operator: n.Data.Operator, Value: n.Data.Value}
}

// Validate checks the comparison or the expression's language. Compiling
// the expression is left to the expression engines.
func (n *Condition) Validate(diags *schema.Diagnostics) {
	if !n.UsesExpression() {
		var fields schema.FieldTypes
		if _, ok := eventFieldTypes[n.Data.Field]; ok {
			fields = EventFieldTypes()
		}
		diags.Merge(filter.ValidateRule(n.Rule(), fields, n.ID))
		return
	}

	switch n.Data.Language {
	case LanguageCEL, LanguageExpr, LanguageJQ:
	case "":
		diags.AddError(n.ID, "language", schema.KindInvalidExpression, "expression has no language")
	default:
		diags.AddError(n.ID, "language", schema.KindInvalidExpression,
			fmt.Sprintf("unsupported expression language %q", n.Data.Language))
	}
	if strings.TrimSpace(n.Data.Expression) == "" {
		diags.AddError(n.ID, "expression", schema.KindInvalidExpression, "expression is empty")
	}
}

// --- Action ---

func (n *Action) Variables() []schema.VariableDescriptor {
	return []schema.VariableDescriptor{
		{Path: "success", Label: "Success", Type: schema.FieldBoolean, ExampleValue: schema.Bool(true)},
		{Path: "actionType", Label: "Action type", Type: schema.FieldString, ExampleValue: schema.String(n.Data.ActionType)},
	}
}

func (n *Action) Validate(diags *schema.Diagnostics) {
	if strings.TrimSpace(n.Data.ActionType) == "" {
		diags.AddError(n.ID, "actionType", schema.KindInvalidValue, "action has no actionType")
	}
	raw := bytes.TrimSpace(n.Data.Config)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		diags.AddError(n.ID, "config", schema.KindInvalidValue, "action config must be a JSON object")
	}
}

// --- Unknown ---

func (n *Unknown) Variables() []schema.VariableDescriptor { return []schema.VariableDescriptor{} }

func (n *Unknown) Validate(diags *schema.Diagnostics) {
	diags.AddWarning(n.ID, "type", schema.KindUnknownNodeType,
		fmt.Sprintf("node type %q is not known to this engine", n.NodeType))
}

// HasVariable reports whether vars contains path, or a prefix of path when
// the matching variable has type any (its shape is only known at run time).
func HasVariable(vars []schema.VariableDescriptor, path string) bool {
	for _, v := range vars {
		if v.Path == path {
			return true
		}
		if v.Type == schema.FieldAny && strings.HasPrefix(path, v.Path+".") {
			return true
		}
	}
	return false
}

// VariableType returns the declared type of path, if exposed.
func VariableType(vars []schema.VariableDescriptor, path string) (schema.FieldType, bool) {
	for _, v := range vars {
		if v.Path == path {
			return v.Type, true
		}
	}
	return "", false
}
