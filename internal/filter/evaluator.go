package filter

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rendis/ruleflow/pkg/schema"
)

// DefaultMatchTimeout bounds a single regular expression match.
const DefaultMatchTimeout = 100 * time.Millisecond

// DefaultMaxPatterns caps the compiled pattern cache. The cache is reset
// when it is full.
const DefaultMaxPatterns = 1024

// Options tune one evaluation pass.
type Options struct {
	// NodeID is attached to every diagnostic.
	NodeID string

	// Fields declares field types. When set, a rule whose operator does not
	// accept the field's type fails closed with an invalid_operator diagnostic.
	Fields schema.FieldTypes
}

// RuleResult is the isolated outcome of one rule.
type RuleResult struct {
	Index    int             `json:"index"`
	Field    string          `json:"field"`
	Operator schema.Operator `json:"operator"`
	Matched  bool            `json:"matched"`
	Present  bool            `json:"present"`
}

// Outcome is the result of evaluating a rule list.
type Outcome struct {
	Matched     bool               `json:"matched"`
	Rules       []RuleResult       `json:"rules,omitempty"`
	Diagnostics schema.Diagnostics `json:"diagnostics,omitempty"`
}

// Evaluator evaluates filter rules. It caches compiled patterns of the
// matches operator and is safe for concurrent use.
type Evaluator struct {
	matchTimeout time.Duration
	maxPatterns  int

	mu       sync.RWMutex
	patterns map[string]compiledPattern // nil disables caching
}

type compiledPattern struct {
	re  *regexp2.Regexp
	err error
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMatchTimeout overrides DefaultMatchTimeout. Non-positive values are ignored.
func WithMatchTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.matchTimeout = d
		}
	}
}

// WithMaxPatterns overrides DefaultMaxPatterns. Non-positive values are ignored.
func WithMaxPatterns(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxPatterns = n
		}
	}
}

// New creates an Evaluator with a pattern cache.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		matchTimeout: DefaultMatchTimeout,
		maxPatterns:  DefaultMaxPatterns,
		patterns:     make(map[string]compiledPattern),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var uncached = &Evaluator{matchTimeout: DefaultMatchTimeout}

// Evaluate reports whether filters match event. An empty list always matches.
func Evaluate(filters []schema.FilterRule, defaultLogic schema.ChainOp, event map[string]any) bool {
	return uncached.Evaluate(filters, defaultLogic, event)
}

// EvaluateDetailed is Evaluate with per-rule results and diagnostics.
func EvaluateDetailed(filters []schema.FilterRule, defaultLogic schema.ChainOp, event map[string]any, opts Options) *Outcome {
	return uncached.EvaluateDetailed(filters, defaultLogic, event, opts)
}

// Evaluate reports whether filters match event.
func (e *Evaluator) Evaluate(filters []schema.FilterRule, defaultLogic schema.ChainOp, event map[string]any) bool {
	return e.EvaluateDetailed(filters, defaultLogic, event, Options{}).Matched
}

// EvaluateDetailed evaluates every rule in isolation, then folds the results
// left to right: each rule's chain (or defaultLogic) combines it with the
// accumulated result. There is no operator precedence, so
// "a OR b AND c" is "(a OR b) AND c".
func (e *Evaluator) EvaluateDetailed(filters []schema.FilterRule, defaultLogic schema.ChainOp, event map[string]any, opts Options) *Outcome {
	out := &Outcome{Matched: true}
	if len(filters) == 0 {
		return out
	}

	out.Rules = make([]RuleResult, len(filters))
	for i, rule := range filters {
		actual, present := schema.LookupField(event, rule.Field)
		res := RuleResult{Index: i, Field: rule.Field, Operator: rule.Operator, Present: present}
		res.Matched = e.matchRule(i, rule, schema.FromAny(actual), present, opts, &out.Diagnostics)
		out.Rules[i] = res
	}

	result := out.Rules[0].Matched
	for i := 1; i < len(filters); i++ {
		switch chainFor(filters[i].Chain, defaultLogic) {
		case schema.ChainOr:
			result = result || out.Rules[i].Matched
		default:
			result = result && out.Rules[i].Matched
		}
	}
	out.Matched = result
	return out
}

// Match evaluates a single rule against event.
func (e *Evaluator) Match(rule schema.FilterRule, event map[string]any) bool {
	var diags schema.Diagnostics
	actual, present := schema.LookupField(event, rule.Field)
	return e.matchRule(0, rule, schema.FromAny(actual), present, Options{}, &diags)
}

// MatchValue evaluates a single rule against an already resolved actual value.
// present is false when the value is absent from its source.
func (e *Evaluator) MatchValue(rule schema.FilterRule, actual schema.Scalar, present bool, opts Options) (bool, schema.Diagnostics) {
	var diags schema.Diagnostics
	matched := e.matchRule(-1, rule, actual, present, opts, &diags)
	return matched, diags
}

func chainFor(chain, defaultLogic schema.ChainOp) schema.ChainOp {
	switch chain {
	case schema.ChainAnd, schema.ChainOr:
		return chain
	}
	if defaultLogic == schema.ChainOr {
		return schema.ChainOr
	}
	return schema.ChainAnd
}

func ruleField(index int, name string) string {
	if index < 0 {
		return name
	}
	return fmt.Sprintf("filters[%d].%s", index, name)
}

// matchRule applies one operator. A missing or null actual fails every
// operator except neq, not_in and not_contains.
func (e *Evaluator) matchRule(index int, rule schema.FilterRule, actual schema.Scalar, present bool, opts Options, diags *schema.Diagnostics) bool {
	if !Known(rule.Operator) {
		diags.AddError(opts.NodeID, ruleField(index, "operator"), schema.KindUnknownOperator,
			fmt.Sprintf("unknown operator %q", rule.Operator))
		return false
	}
	if ft, ok := opts.Fields[rule.Field]; ok && !IsApplicable(rule.Operator, ft) {
		diags.AddError(opts.NodeID, ruleField(index, "operator"), schema.KindInvalidOperator,
			fmt.Sprintf("operator %q is not applicable to %s field %q", rule.Operator, ft, rule.Field))
		return false
	}

	absent := !present || actual.IsNull()

	switch rule.Operator {
	case schema.OpEq:
		return !absent && actual.Equal(rule.Value)
	case schema.OpNeq:
		return absent || !actual.Equal(rule.Value)

	case schema.OpGt, schema.OpLt, schema.OpGte, schema.OpLte:
		if absent {
			return false
		}
		return compareNumbers(rule.Operator, actual, rule.Value)

	case schema.OpBetween:
		lo, hi, ok := Bounds(rule.Value)
		if !ok {
			diags.AddError(opts.NodeID, ruleField(index, "value"), schema.KindInvalidValue,
				"between expects a [min, max] pair of numbers")
			return false
		}
		if absent {
			return false
		}
		n, ok := actual.Number()
		return ok && lo <= n && n <= hi

	case schema.OpIn, schema.OpNotIn:
		members := Members(rule.Value)
		if absent {
			return rule.Operator == schema.OpNotIn
		}
		found := containsAny(members, actual)
		if rule.Operator == schema.OpIn {
			return found
		}
		return !found

	case schema.OpContains:
		return !absent && strings.Contains(actual.Text(), rule.Value.Text())
	case schema.OpNotContains:
		return absent || !strings.Contains(actual.Text(), rule.Value.Text())
	case schema.OpStartsWith:
		return !absent && strings.HasPrefix(actual.Text(), rule.Value.Text())
	case schema.OpEndsWith:
		return !absent && strings.HasSuffix(actual.Text(), rule.Value.Text())

	case schema.OpMatches:
		re, err := e.compile(rule.Value.Text())
		if err != nil {
			diags.AddError(opts.NodeID, ruleField(index, "value"), schema.KindInvalidRegex,
				fmt.Sprintf("invalid regular expression %q: %s", rule.Value.Text(), err))
			return false
		}
		if absent {
			return false
		}
		ok, err := re.MatchString(actual.Text())
		if err != nil {
			diags.AddError(opts.NodeID, ruleField(index, "value"), schema.KindInvalidRegex,
				fmt.Sprintf("regular expression %q did not complete: %s", rule.Value.Text(), err))
			return false
		}
		return ok
	}
	return false
}

func compareNumbers(op schema.Operator, actual, value schema.Scalar) bool {
	a, okA := actual.Number()
	b, okB := value.Number()
	if !okA || !okB {
		return false
	}
	switch op {
	case schema.OpGt:
		return a > b
	case schema.OpLt:
		return a < b
	case schema.OpGte:
		return a >= b
	case schema.OpLte:
		return a <= b
	}
	return false
}

// Bounds extracts the [lo, hi] pair of a between rule from a two element
// list or a "lo,hi" string.
func Bounds(value schema.Scalar) (float64, float64, bool) {
	var parts []schema.Scalar
	switch value.Kind() {
	case schema.ScalarList:
		parts = value.Items()
	case schema.ScalarString:
		for _, p := range strings.Split(value.Text(), ",") {
			parts = append(parts, schema.String(p))
		}
	}
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, okLo := parts[0].Number()
	hi, okHi := parts[1].Number()
	if !okLo || !okHi {
		return 0, 0, false
	}
	return lo, hi, true
}

// Members expands the value of an in/not_in rule: lists are used as is,
// strings are split on commas with blanks trimmed and empty entries dropped.
func Members(value schema.Scalar) []schema.Scalar {
	switch value.Kind() {
	case schema.ScalarNull:
		return nil
	case schema.ScalarList:
		return value.Items()
	case schema.ScalarString:
		var out []schema.Scalar
		for _, p := range strings.Split(value.Text(), ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, schema.String(p))
			}
		}
		return out
	default:
		return []schema.Scalar{value}
	}
}

// containsAny reports membership of actual in members. A list actual
// (multiselect) is a member when any of its elements is.
func containsAny(members []schema.Scalar, actual schema.Scalar) bool {
	candidates := []schema.Scalar{actual}
	if actual.Kind() == schema.ScalarList {
		candidates = actual.Items()
	}
	for _, c := range candidates {
		for _, m := range members {
			if c.Equal(m) {
				return true
			}
		}
	}
	return false
}

// compile returns a match-time bounded ECMAScript regexp, cached when the
// evaluator has a cache.
func (e *Evaluator) compile(pattern string) (*regexp2.Regexp, error) {
	if e.patterns == nil {
		return e.compileUncached(pattern)
	}

	e.mu.RLock()
	if cp, ok := e.patterns[pattern]; ok {
		e.mu.RUnlock()
		return cp.re, cp.err
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if cp, ok := e.patterns[pattern]; ok {
		return cp.re, cp.err
	}

	re, err := e.compileUncached(pattern)
	if len(e.patterns) >= e.maxPatterns {
		clear(e.patterns)
	}
	e.patterns[pattern] = compiledPattern{re: re, err: err}
	return re, err
}

func (e *Evaluator) compileUncached(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = e.matchTimeout
	return re, nil
}

// CompilePattern validates a matches pattern the way evaluation compiles it.
func CompilePattern(pattern string) error {
	_, err := uncached.compileUncached(pattern)
	return err
}
