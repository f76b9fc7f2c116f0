package expressions

import (
	"context"
	"fmt"

	"github.com/rendis/ruleflow/internal/nodes"
	"github.com/rendis/ruleflow/pkg/schema"
)

// Engine evaluates the expression of an advanced condition node.
// Three implementations: CEL, Expr and GoJQ.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
	// Validate compiles expression without running it.
	Validate(expression string) error
}

// Engines holds one engine per condition language.
type Engines struct {
	byName map[string]Engine
}

// NewEngines creates the CEL, Expr and jq engines.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Engines{byName: map[string]Engine{
		nodes.LanguageCEL:  celEngine,
		nodes.LanguageExpr: NewExprEngine(),
		nodes.LanguageJQ:   NewGoJQEngine(),
	}}, nil
}

// Get returns the engine for language.
func (e *Engines) Get(language string) (Engine, bool) {
	eng, ok := e.byName[language]
	return eng, ok
}

// Validate compiles expression with the engine for language.
func (e *Engines) Validate(language, expression string) error {
	eng, ok := e.Get(language)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeInvalidInput, "unsupported expression language %q", language)
	}
	return eng.Validate(expression)
}

// EvaluateCondition runs expression against the node outputs and env of
// ectx. The result must be a boolean.
func (e *Engines) EvaluateCondition(ctx context.Context, language, expression string, ectx *ExpressionContext) (bool, error) {
	eng, ok := e.Get(language)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeInvalidInput, "unsupported expression language %q", language)
	}

	result, err := eng.Evaluate(ctx, expression, ectx.Data())
	if err != nil {
		return false, err
	}

	b, ok := result.(bool)
	if !ok {
		return false, schema.NewError(schema.ErrCodeEvaluation,
			fmt.Sprintf("%s condition must evaluate to bool, got %T", language, result)).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}
