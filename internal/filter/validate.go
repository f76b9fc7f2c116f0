package filter

import (
	"fmt"
	"strings"

	"github.com/rendis/ruleflow/pkg/schema"
)

// ValidateRules performs the configuration-time checks of a rule list.
// fields may be nil, in which case operator/type and unknown field checks
// are skipped. Rule values holding {{ }} expressions are only checked after
// resolution, at evaluation time.
func ValidateRules(filters []schema.FilterRule, fields schema.FieldTypes, nodeID string) schema.Diagnostics {
	var diags schema.Diagnostics

	for i, rule := range filters {
		at := func(name string) string { return ruleField(i, name) }

		switch rule.Chain {
		case schema.ChainNone, schema.ChainAnd, schema.ChainOr:
			if i == 0 && rule.Chain != schema.ChainNone {
				diags.AddWarning(nodeID, at("chain"), schema.KindInvalidValue,
					"chain of the first rule is ignored")
			}
		default:
			diags.AddError(nodeID, at("chain"), schema.KindInvalidValue,
				fmt.Sprintf("chain must be AND or OR, got %q", rule.Chain))
		}

		validateRule(&diags, rule, fields, nodeID, at)
	}

	return diags
}

// ValidateRule checks a single comparison outside of a rule list, as used by
// condition nodes. Diagnostic fields are the bare rule keys.
func ValidateRule(rule schema.FilterRule, fields schema.FieldTypes, nodeID string) schema.Diagnostics {
	var diags schema.Diagnostics
	validateRule(&diags, rule, fields, nodeID, func(name string) string { return name })
	return diags
}

func validateRule(diags *schema.Diagnostics, rule schema.FilterRule, fields schema.FieldTypes, nodeID string, at func(string) string) {
	if strings.TrimSpace(rule.Field) == "" {
		diags.AddError(nodeID, at("field"), schema.KindInvalidValue, "field is required")
	}

	if !Known(rule.Operator) {
		diags.AddError(nodeID, at("operator"), schema.KindUnknownOperator,
			fmt.Sprintf("unknown operator %q", rule.Operator))
		return
	}

	if fields != nil && rule.Field != "" {
		ft, ok := fields[rule.Field]
		switch {
		case !ok:
			diags.AddWarning(nodeID, at("field"), schema.KindUnknownField,
				fmt.Sprintf("field %q is not part of the event catalog", rule.Field))
		case !IsApplicable(rule.Operator, ft):
			diags.AddError(nodeID, at("operator"), schema.KindInvalidOperator,
				fmt.Sprintf("operator %q is not applicable to %s field %q", rule.Operator, ft, rule.Field))
		}
	}

	if hasExpression(rule.Value) {
		return
	}

	switch rule.Operator {
	case schema.OpGt, schema.OpLt, schema.OpGte, schema.OpLte:
		if _, ok := rule.Value.Number(); !ok {
			diags.AddError(nodeID, at("value"), schema.KindInvalidValue,
				fmt.Sprintf("%s expects a number, got %q", rule.Operator, rule.Value.Text()))
		}
	case schema.OpBetween:
		lo, hi, ok := Bounds(rule.Value)
		if !ok {
			diags.AddError(nodeID, at("value"), schema.KindInvalidValue,
				"between expects a [min, max] pair of numbers")
		} else if lo > hi {
			diags.AddWarning(nodeID, at("value"), schema.KindInvalidValue,
				fmt.Sprintf("between range %s..%s is empty", schema.FormatNumber(lo), schema.FormatNumber(hi)))
		}
	case schema.OpIn, schema.OpNotIn:
		if len(Members(rule.Value)) == 0 {
			diags.AddWarning(nodeID, at("value"), schema.KindInvalidValue,
				fmt.Sprintf("%s has an empty value list", rule.Operator))
		}
	case schema.OpMatches:
		if err := CompilePattern(rule.Value.Text()); err != nil {
			diags.AddError(nodeID, at("value"), schema.KindInvalidRegex,
				fmt.Sprintf("invalid regular expression %q: %s", rule.Value.Text(), err))
		}
	}
}

func hasExpression(v schema.Scalar) bool {
	switch v.Kind() {
	case schema.ScalarString:
		return strings.Contains(v.Text(), "{{")
	case schema.ScalarList:
		for _, item := range v.Items() {
			if hasExpression(item) {
				return true
			}
		}
	}
	return false
}
