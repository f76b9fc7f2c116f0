package schema

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind ScalarKind
	}{
		{"nil", nil, ScalarNull},
		{"string", "RU", ScalarString},
		{"bool", true, ScalarBool},
		{"float64", 15000.0, ScalarNumber},
		{"int", 42, ScalarNumber},
		{"int64", int64(7), ScalarNumber},
		{"json number", json.Number("3.5"), ScalarNumber},
		{"slice", []any{"a", 1.0}, ScalarList},
		{"strings", []string{"a", "b"}, ScalarList},
		{"object", map[string]any{"a": 1}, ScalarString},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, FromAny(tc.in).Kind())
		})
	}
}

func TestScalar_Number(t *testing.T) {
	n, ok := Number(10).Number()
	assert.True(t, ok)
	assert.Equal(t, 10.0, n)

	n, ok = String(" 12.5 ").Number()
	assert.True(t, ok)
	assert.Equal(t, 12.5, n)

	for _, s := range []Scalar{String(""), String("abc"), String("NaN"), String("Inf"), Bool(true), Null(), List(Number(1)), Number(math.NaN())} {
		_, ok := s.Number()
		assert.False(t, ok, "expected %v not to coerce", s.Any())
	}
}

func TestScalar_Text(t *testing.T) {
	assert.Equal(t, "15000", Number(15000).Text())
	assert.Equal(t, "1.5", Number(1.5).Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, "", Null().Text())
	assert.Equal(t, "a,2", List(String("a"), Number(2)).Text())
}

func TestScalar_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Scalar
		want bool
	}{
		{"same string", String("RU"), String("RU"), true},
		{"case sensitive", String("ru"), String("RU"), false},
		{"numbers", Number(1), Number(1.0), true},
		{"number vs numeric string", Number(10000), String("10000"), true},
		{"number vs text", Number(1), String("one"), false},
		{"bool vs string", Bool(true), String("true"), true},
		{"bool vs number", Bool(true), Number(1), false},
		{"nulls", Null(), Null(), true},
		{"null vs empty", Null(), String(""), false},
		{"lists", List(String("a"), Number(1)), List(String("a"), String("1")), true},
		{"list length", List(String("a")), List(String("a"), String("b")), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Equal(tc.b))
			assert.Equal(t, tc.want, tc.b.Equal(tc.a))
		})
	}
}

func TestScalar_JSON(t *testing.T) {
	var rule FilterRule
	require.NoError(t, json.Unmarshal([]byte(`{"field":"amount","operator":"between","value":[100,200]}`), &rule))
	assert.Equal(t, ScalarList, rule.Value.Kind())
	require.Len(t, rule.Value.Items(), 2)

	out, err := json.Marshal(rule.Value)
	require.NoError(t, err)
	assert.JSONEq(t, `[100,200]`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"field":"country","operator":"eq"}`), &rule))
	assert.True(t, rule.Value.IsNull())
}

func TestTriggerConfig_Clone(t *testing.T) {
	cfg := TriggerConfig{
		Filters: []FilterRule{{Field: "country", Operator: OpIn, Value: List(String("RU"))}},
		Enabled: true,
	}
	cp := cfg.Clone()
	cp.Filters[0].Field = "currency"

	assert.Equal(t, "country", cfg.Filters[0].Field)
	assert.Equal(t, ChainAnd, cfg.Logic())
	cfg.DefaultLogic = ChainOr
	assert.Equal(t, ChainOr, cfg.Logic())
}
