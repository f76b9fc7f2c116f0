package schema

// FieldType determines which operators are legal for a field.
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldNumber      FieldType = "number"
	FieldBoolean     FieldType = "boolean"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"

	// FieldAny is only used by variable descriptors whose type is not known
	// until run time.
	FieldAny FieldType = "any"
)

// FieldTypes maps field names to their declared types.
type FieldTypes map[string]FieldType

// Operator is a comparison or matching operator of a filter rule.
type Operator string

const (
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpGt          Operator = "gt"
	OpLt          Operator = "lt"
	OpGte         Operator = "gte"
	OpLte         Operator = "lte"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpMatches     Operator = "matches"
	OpBetween     Operator = "between"
)

// ChainOp combines a rule with the result of the rules before it.
// The empty value means "use the default logic".
type ChainOp string

const (
	ChainNone ChainOp = ""
	ChainAnd  ChainOp = "AND"
	ChainOr   ChainOp = "OR"
)

// FilterRule is one user-authored condition.
type FilterRule struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Scalar   `json:"value"`
	Chain    ChainOp  `json:"chain,omitempty"`
}

// Clone returns a deep copy of the rule.
func (r FilterRule) Clone() FilterRule {
	cp := r
	if r.Value.Kind() == ScalarList {
		cp.Value = List(r.Value.Items()...)
	}
	return cp
}

// TriggerConfig is the filter configuration stored on a trigger node.
type TriggerConfig struct {
	Event        string       `json:"event,omitempty"`    // e.g. order.created, kyc.submitted, schedule
	Schedule     string       `json:"schedule,omitempty"` // cron expression, schedule triggers only
	Filters      []FilterRule `json:"filters"`
	DefaultLogic ChainOp      `json:"defaultLogic,omitempty"`
	Enabled      bool         `json:"enabled"`
}

// Logic returns the default logic, falling back to AND when unset.
func (c TriggerConfig) Logic() ChainOp {
	if c.DefaultLogic == ChainOr {
		return ChainOr
	}
	return ChainAnd
}

// Clone returns a deep copy of the config, so edits never reach a config
// that is being evaluated.
func (c TriggerConfig) Clone() TriggerConfig {
	cp := c
	if c.Filters != nil {
		cp.Filters = make([]FilterRule, len(c.Filters))
		for i, r := range c.Filters {
			cp.Filters[i] = r.Clone()
		}
	}
	return cp
}
