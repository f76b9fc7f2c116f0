package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ScalarKind tags the variant held by a Scalar.
type ScalarKind uint8

const (
	ScalarNull ScalarKind = iota
	ScalarString
	ScalarNumber
	ScalarBool
	ScalarList
)

func (k ScalarKind) String() string {
	switch k {
	case ScalarString:
		return "string"
	case ScalarNumber:
		return "number"
	case ScalarBool:
		return "boolean"
	case ScalarList:
		return "list"
	default:
		return "null"
	}
}

// Scalar is a loosely typed field value from an event payload or a filter
// rule. Every coercion is total: it either yields a value or reports false.
type Scalar struct {
	kind  ScalarKind
	str   string
	num   float64
	flag  bool
	items []Scalar
}

// Null returns the null scalar.
func Null() Scalar { return Scalar{} }

// String returns a string scalar.
func String(s string) Scalar { return Scalar{kind: ScalarString, str: s} }

// Number returns a number scalar.
func Number(f float64) Scalar { return Scalar{kind: ScalarNumber, num: f} }

// Bool returns a boolean scalar.
func Bool(b bool) Scalar { return Scalar{kind: ScalarBool, flag: b} }

// List returns a list scalar holding items.
func List(items ...Scalar) Scalar {
	cp := make([]Scalar, len(items))
	copy(cp, items)
	return Scalar{kind: ScalarList, items: cp}
}

// FromAny converts a decoded JSON value (or a plain Go value) into a Scalar.
// Objects have no scalar form; they become their JSON text so string
// operators still see their content.
func FromAny(v any) Scalar {
	switch val := v.(type) {
	case nil:
		return Null()
	case Scalar:
		return val
	case *Scalar:
		if val == nil {
			return Null()
		}
		return *val
	case string:
		return String(val)
	case bool:
		return Bool(val)
	case float64:
		return Number(val)
	case float32:
		return Number(float64(val))
	case int:
		return Number(float64(val))
	case int8:
		return Number(float64(val))
	case int16:
		return Number(float64(val))
	case int32:
		return Number(float64(val))
	case int64:
		return Number(float64(val))
	case uint:
		return Number(float64(val))
	case uint8:
		return Number(float64(val))
	case uint16:
		return Number(float64(val))
	case uint32:
		return Number(float64(val))
	case uint64:
		return Number(float64(val))
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return Number(f)
		}
		return String(val.String())
	case []any:
		items := make([]Scalar, len(val))
		for i, item := range val {
			items[i] = FromAny(item)
		}
		return Scalar{kind: ScalarList, items: items}
	case []string:
		items := make([]Scalar, len(val))
		for i, item := range val {
			items[i] = String(item)
		}
		return Scalar{kind: ScalarList, items: items}
	case []float64:
		items := make([]Scalar, len(val))
		for i, item := range val {
			items[i] = Number(item)
		}
		return Scalar{kind: ScalarList, items: items}
	case []Scalar:
		return List(val...)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return Null()
		}
		return String(string(b))
	}
}

// Kind returns the variant tag.
func (s Scalar) Kind() ScalarKind { return s.kind }

// IsNull reports whether s is the null scalar.
func (s Scalar) IsNull() bool { return s.kind == ScalarNull }

// Number coerces s to a finite number. Strings are parsed after trimming;
// booleans, lists and null do not coerce.
func (s Scalar) Number() (float64, bool) {
	switch s.kind {
	case ScalarNumber:
		return s.num, !math.IsNaN(s.num) && !math.IsInf(s.num, 0)
	case ScalarString:
		trimmed := strings.TrimSpace(s.str)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Text coerces s to its string form: numbers without trailing zeros,
// booleans as true/false, lists comma-joined and null as "".
func (s Scalar) Text() string {
	switch s.kind {
	case ScalarString:
		return s.str
	case ScalarNumber:
		return FormatNumber(s.num)
	case ScalarBool:
		return strconv.FormatBool(s.flag)
	case ScalarList:
		parts := make([]string, len(s.items))
		for i, item := range s.items {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// Truth returns the boolean held by s. Only booleans and the strings
// "true"/"false" coerce.
func (s Scalar) Truth() (bool, bool) {
	switch s.kind {
	case ScalarBool:
		return s.flag, true
	case ScalarString:
		switch strings.ToLower(strings.TrimSpace(s.str)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// Items returns the elements of a list scalar, or nil for other kinds.
func (s Scalar) Items() []Scalar {
	if s.kind != ScalarList {
		return nil
	}
	cp := make([]Scalar, len(s.items))
	copy(cp, s.items)
	return cp
}

// Equal is structural equality on primitives. A number equals a string that
// parses to the same number and a boolean equals "true"/"false", because
// editor inputs arrive as text.
func (s Scalar) Equal(other Scalar) bool {
	if s.kind == other.kind {
		switch s.kind {
		case ScalarNull:
			return true
		case ScalarString:
			return s.str == other.str
		case ScalarNumber:
			return s.num == other.num
		case ScalarBool:
			return s.flag == other.flag
		case ScalarList:
			if len(s.items) != len(other.items) {
				return false
			}
			for i := range s.items {
				if !s.items[i].Equal(other.items[i]) {
					return false
				}
			}
			return true
		}
	}

	switch {
	case s.kind == ScalarNumber && other.kind == ScalarString,
		s.kind == ScalarString && other.kind == ScalarNumber:
		a, okA := s.Number()
		b, okB := other.Number()
		return okA && okB && a == b
	case s.kind == ScalarBool && other.kind == ScalarString,
		s.kind == ScalarString && other.kind == ScalarBool:
		a, okA := s.Truth()
		b, okB := other.Truth()
		return okA && okB && a == b
	}
	return false
}

// Any converts s back to a plain Go value (string, float64, bool, []any or nil).
func (s Scalar) Any() any {
	switch s.kind {
	case ScalarString:
		return s.str
	case ScalarNumber:
		return s.num
	case ScalarBool:
		return s.flag
	case ScalarList:
		out := make([]any, len(s.items))
		for i, item := range s.items {
			out[i] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes s as its natural JSON value.
func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Any())
}

// UnmarshalJSON decodes any JSON value into s.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = FromAny(v)
	return nil
}

// FormatNumber renders f the way the editor displays numbers: integers
// without a decimal point and no trailing zeros.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
