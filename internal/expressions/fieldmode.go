package expressions

// FieldMode is the editing mode of a configuration field.
type FieldMode string

const (
	FieldStatic     FieldMode = "static"
	FieldExpression FieldMode = "expression"
)

// emptyExpression seeds a field switched to expression mode.
const emptyExpression = "{{  }}"

// ModeOf derives the mode of a field from its value: any string holding an
// opening marker is an expression, everything else is static.
func ModeOf(v any) FieldMode {
	if IsExpression(v) {
		return FieldExpression
	}
	return FieldStatic
}

// ToStatic switches a field to static mode. The expression is discarded so
// the field starts empty.
func ToStatic(v any) any {
	if ModeOf(v) == FieldStatic {
		return v
	}
	return ""
}

// ToExpression switches a field to expression mode. Values already holding
// a marker are kept; anything else is replaced by an empty span ready to be
// filled in.
func ToExpression(v any) any {
	if ModeOf(v) == FieldExpression {
		return v
	}
	return emptyExpression
}

// Toggle flips the mode of a field.
func Toggle(v any) any {
	if ModeOf(v) == FieldExpression {
		return ToStatic(v)
	}
	return ToExpression(v)
}
