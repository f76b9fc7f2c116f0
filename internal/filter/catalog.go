// Package filter evaluates trigger filter rules against event payloads.
package filter

import "github.com/rendis/ruleflow/pkg/schema"

var stringish = []schema.FieldType{schema.FieldString}

// catalog lists operators in editor order with the field types each accepts.
var catalog = []struct {
	op    schema.Operator
	types []schema.FieldType
}{
	{schema.OpEq, []schema.FieldType{schema.FieldString, schema.FieldNumber, schema.FieldBoolean, schema.FieldSelect}},
	{schema.OpNeq, []schema.FieldType{schema.FieldString, schema.FieldNumber, schema.FieldBoolean, schema.FieldSelect}},
	{schema.OpGt, []schema.FieldType{schema.FieldNumber}},
	{schema.OpLt, []schema.FieldType{schema.FieldNumber}},
	{schema.OpGte, []schema.FieldType{schema.FieldNumber}},
	{schema.OpLte, []schema.FieldType{schema.FieldNumber}},
	{schema.OpBetween, []schema.FieldType{schema.FieldNumber}},
	{schema.OpIn, []schema.FieldType{schema.FieldString, schema.FieldSelect, schema.FieldMultiselect}},
	{schema.OpNotIn, []schema.FieldType{schema.FieldString, schema.FieldSelect, schema.FieldMultiselect}},
	{schema.OpContains, stringish},
	{schema.OpNotContains, stringish},
	{schema.OpStartsWith, stringish},
	{schema.OpEndsWith, stringish},
	{schema.OpMatches, stringish},
}

var acceptedTypes = func() map[schema.Operator][]schema.FieldType {
	m := make(map[schema.Operator][]schema.FieldType, len(catalog))
	for _, entry := range catalog {
		m[entry.op] = entry.types
	}
	return m
}()

// Known reports whether op is part of the operator catalog.
func Known(op schema.Operator) bool {
	_, ok := acceptedTypes[op]
	return ok
}

// AcceptedTypes returns the field types op may be applied to, or nil for an
// unknown operator.
func AcceptedTypes(op schema.Operator) []schema.FieldType {
	types := acceptedTypes[op]
	if types == nil {
		return nil
	}
	cp := make([]schema.FieldType, len(types))
	copy(cp, types)
	return cp
}

// IsApplicable reports whether op accepts fields of type ft. Fields of type
// "any" have no declared type and accept every known operator.
func IsApplicable(op schema.Operator, ft schema.FieldType) bool {
	types, ok := acceptedTypes[op]
	if !ok {
		return false
	}
	if ft == schema.FieldAny {
		return true
	}
	for _, t := range types {
		if t == ft {
			return true
		}
	}
	return false
}

// OperatorsFor returns the operators applicable to ft in catalog order.
func OperatorsFor(ft schema.FieldType) []schema.Operator {
	var ops []schema.Operator
	for _, entry := range catalog {
		if IsApplicable(entry.op, ft) {
			ops = append(ops, entry.op)
		}
	}
	return ops
}

// Operators returns every known operator in catalog order.
func Operators() []schema.Operator {
	ops := make([]schema.Operator, len(catalog))
	for i, entry := range catalog {
		ops[i] = entry.op
	}
	return ops
}
