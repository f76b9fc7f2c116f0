package schema

import "fmt"

// Severity indicates whether a diagnostic is an error or a warning.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// DiagnosticKind classifies a configuration problem for the editor UI.
type DiagnosticKind string

const (
	KindInvalidOperator      DiagnosticKind = "invalid_operator"
	KindUnknownOperator      DiagnosticKind = "unknown_operator"
	KindInvalidRegex         DiagnosticKind = "invalid_regex"
	KindInvalidValue         DiagnosticKind = "invalid_value"
	KindUnresolvedExpression DiagnosticKind = "unresolved_expression"
	KindMalformedExpression  DiagnosticKind = "malformed_expression"
	KindUnreachableReference DiagnosticKind = "unreachable_reference"
	KindUnknownVariable      DiagnosticKind = "unknown_variable"
	KindUnknownField         DiagnosticKind = "unknown_field"
	KindUnknownNodeType      DiagnosticKind = "unknown_node_type"
	KindDanglingEdge         DiagnosticKind = "dangling_edge"
	KindCycle                DiagnosticKind = "cycle"
	KindInvalidSchedule      DiagnosticKind = "invalid_schedule"
	KindInvalidExpression    DiagnosticKind = "invalid_expression"
	KindStructure            DiagnosticKind = "structure"
)

// Diagnostic is a single problem tied to a node and one of its fields.
type Diagnostic struct {
	NodeID   string         `json:"nodeId,omitempty"`
	Field    string         `json:"field,omitempty"`
	Kind     DiagnosticKind `json:"kind"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
}

func (d Diagnostic) String() string {
	loc := d.NodeID
	if d.Field != "" {
		loc += "." + d.Field
	}
	if loc == "" {
		return fmt.Sprintf("%s %s: %s", d.Severity, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s %s at %s: %s", d.Severity, d.Kind, loc, d.Message)
}

// Diagnostics is an ordered list of diagnostics. The zero value is ready to use.
type Diagnostics []Diagnostic

// AddError appends an error-severity diagnostic.
func (d *Diagnostics) AddError(nodeID, field string, kind DiagnosticKind, message string) {
	*d = append(*d, Diagnostic{
		NodeID: nodeID, Field: field, Kind: kind, Message: message, Severity: SeverityError,
	})
}

// AddWarning appends a warning-severity diagnostic.
func (d *Diagnostics) AddWarning(nodeID, field string, kind DiagnosticKind, message string) {
	*d = append(*d, Diagnostic{
		NodeID: nodeID, Field: field, Kind: kind, Message: message, Severity: SeverityWarning,
	})
}

// Merge appends all diagnostics from other.
func (d *Diagnostics) Merge(other Diagnostics) {
	*d = append(*d, other...)
}

// Valid returns true if there are no error-severity diagnostics.
func (d Diagnostics) Valid() bool {
	for _, item := range d {
		if item.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns only the error-severity diagnostics.
func (d Diagnostics) Errors() Diagnostics {
	return d.filter(func(item Diagnostic) bool { return item.Severity == SeverityError })
}

// Warnings returns only the warning-severity diagnostics.
func (d Diagnostics) Warnings() Diagnostics {
	return d.filter(func(item Diagnostic) bool { return item.Severity == SeverityWarning })
}

// ForNode returns the diagnostics attached to nodeID.
func (d Diagnostics) ForNode(nodeID string) Diagnostics {
	return d.filter(func(item Diagnostic) bool { return item.NodeID == nodeID })
}

// OfKind returns the diagnostics of the given kind.
func (d Diagnostics) OfKind(kind DiagnosticKind) Diagnostics {
	return d.filter(func(item Diagnostic) bool { return item.Kind == kind })
}

func (d Diagnostics) filter(keep func(Diagnostic) bool) Diagnostics {
	var out Diagnostics
	for _, item := range d {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// WithNode returns a copy where diagnostics without a node ID get nodeID.
func (d Diagnostics) WithNode(nodeID string) Diagnostics {
	out := make(Diagnostics, len(d))
	for i, item := range d {
		if item.NodeID == "" {
			item.NodeID = nodeID
		}
		out[i] = item
	}
	return out
}

// ToError converts the diagnostics to a RuleflowError if any error is present.
func (d Diagnostics) ToError() error {
	errs := d.Errors()
	if len(errs) == 0 {
		return nil
	}

	msg := errs[0].Message
	if len(errs) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(errs))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(errs),
			"warning_count": len(d) - len(errs),
			"diagnostics":   []Diagnostic(d),
		})
}
