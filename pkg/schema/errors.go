package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeDecode        = "DECODE_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInterpolation = "INTERPOLATION_ERROR"
	ErrCodeEvaluation    = "EVALUATION_ERROR"
	ErrCodeInvalidInput  = "INVALID_INPUT"
)

// RuleflowError is the structured error type returned at the edges of the
// engine (decoding, tool and CLI input). Evaluation itself reports problems
// as Diagnostics, never as errors.
type RuleflowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *RuleflowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *RuleflowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new RuleflowError.
func NewError(code, message string) *RuleflowError {
	return &RuleflowError{Code: code, Message: message}
}

// NewErrorf creates a new RuleflowError with a formatted message.
func NewErrorf(code, format string, args ...any) *RuleflowError {
	return &RuleflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *RuleflowError) WithNode(nodeID string) *RuleflowError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *RuleflowError) WithCause(err error) *RuleflowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *RuleflowError) WithDetails(details map[string]any) *RuleflowError {
	e.Details = details
	return e
}
