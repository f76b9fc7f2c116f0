package filter

import (
	"testing"

	"github.com/rendis/ruleflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Applicability(t *testing.T) {
	tests := []struct {
		op   schema.Operator
		ft   schema.FieldType
		want bool
	}{
		{schema.OpEq, schema.FieldBoolean, true},
		{schema.OpEq, schema.FieldMultiselect, false},
		{schema.OpGt, schema.FieldNumber, true},
		{schema.OpGt, schema.FieldString, false},
		{schema.OpBetween, schema.FieldSelect, false},
		{schema.OpIn, schema.FieldMultiselect, true},
		{schema.OpNotIn, schema.FieldNumber, false},
		{schema.OpMatches, schema.FieldString, true},
		{schema.OpStartsWith, schema.FieldSelect, false},
		{schema.OpContains, schema.FieldAny, true},
		{"approx", schema.FieldAny, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.op)+"/"+string(tc.ft), func(t *testing.T) {
			assert.Equal(t, tc.want, IsApplicable(tc.op, tc.ft))
		})
	}
}

func TestCatalog_Known(t *testing.T) {
	assert.Len(t, Operators(), 14)
	for _, op := range Operators() {
		assert.True(t, Known(op), op)
	}
	assert.False(t, Known("approx"))
	assert.Nil(t, AcceptedTypes("approx"))
}

func TestCatalog_AcceptedTypesIsCopy(t *testing.T) {
	types := AcceptedTypes(schema.OpGt)
	require.Equal(t, []schema.FieldType{schema.FieldNumber}, types)
	types[0] = schema.FieldString
	assert.False(t, IsApplicable(schema.OpGt, schema.FieldString))
}

func TestCatalog_OperatorsFor(t *testing.T) {
	assert.Equal(t, []schema.Operator{schema.OpEq, schema.OpNeq}, OperatorsFor(schema.FieldBoolean))
	assert.Equal(t, []schema.Operator{schema.OpIn, schema.OpNotIn}, OperatorsFor(schema.FieldMultiselect))
	assert.Equal(t, []schema.Operator{
		schema.OpEq, schema.OpNeq, schema.OpGt, schema.OpLt, schema.OpGte, schema.OpLte, schema.OpBetween,
	}, OperatorsFor(schema.FieldNumber))
	assert.Len(t, OperatorsFor(schema.FieldAny), 14)
}
