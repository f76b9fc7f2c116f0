// Package engine evaluates a workflow against one inbound event: trigger
// filters, condition nodes and action config resolution. Actions are never
// executed; the report says which would run and with what config.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/filter"
	"github.com/rendis/ruleflow/internal/graph"
	"github.com/rendis/ruleflow/internal/logging"
	"github.com/rendis/ruleflow/internal/nodes"
	"github.com/rendis/ruleflow/internal/telemetry"
	"github.com/rendis/ruleflow/internal/validation"
	"github.com/rendis/ruleflow/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options holds the collaborators of an Evaluator. Nil fields get defaults.
type Options struct {
	Logger   *slog.Logger
	Resolver *expressions.Resolver
	Filter   *filter.Evaluator
	Engines  *expressions.Engines

	// Validator, when set, checks event payloads against the event catalog
	// and reports mismatches as warnings.
	Validator *validation.Validator

	// Tracer and Metrics default to the global OpenTelemetry providers.
	Tracer  trace.Tracer
	Metrics *telemetry.Metrics
}

// Evaluator runs workflows against events. It is safe for concurrent use;
// every call builds its own expression context.
type Evaluator struct {
	logger    *slog.Logger
	resolver  *expressions.Resolver
	filter    *filter.Evaluator
	engines   *expressions.Engines
	validator *validation.Validator
	tracer    trace.Tracer
	metrics   *telemetry.Metrics
}

// New creates an Evaluator.
func New(opts Options) (*Evaluator, error) {
	e := &Evaluator{
		logger:    opts.Logger,
		resolver:  opts.Resolver,
		filter:    opts.Filter,
		engines:   opts.Engines,
		validator: opts.Validator,
		tracer:    opts.Tracer,
		metrics:   opts.Metrics,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.resolver == nil {
		e.resolver = expressions.NewResolver()
	}
	if e.filter == nil {
		e.filter = filter.New()
	}
	if e.engines == nil {
		engines, err := expressions.NewEngines()
		if err != nil {
			return nil, err
		}
		e.engines = engines
	}
	if e.tracer == nil {
		e.tracer = telemetry.Tracer()
	}
	if e.metrics == nil {
		metrics, err := telemetry.NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		e.metrics = metrics
	}
	return e, nil
}

// run is the state of one evaluation.
type run struct {
	wf      *schema.Workflow
	event   map[string]any
	graph   *graph.Graph
	builder *expressions.ContextBuilder
	report  *Report

	fired      map[string]bool
	conditions map[string]bool
}

// Evaluate runs wf against event. env supplies the $env namespace.
// Malformed graphs never fail the evaluation; their problems are reported
// as diagnostics. Only a nil workflow or a cancelled context is an error.
func (e *Evaluator) Evaluate(ctx context.Context, wf *schema.Workflow, event map[string]any, env map[string]string) (*Report, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "workflow is nil")
	}
	if event == nil {
		event = map[string]any{}
	}

	started := time.Now()
	report := &Report{
		EvaluationID: uuid.NewString(),
		WorkflowID:   wf.ID,
		Triggers:     []TriggerOutcome{},
		Nodes:        []NodeOutcome{},
		StartedAt:    started.UTC(),
	}
	ctx = logging.WithIDs(ctx, report.EvaluationID, wf.ID)

	ctx, span := e.tracer.Start(ctx, "evaluate:"+spanName(wf),
		trace.WithAttributes(
			attribute.String(telemetry.EvaluationIDKey, report.EvaluationID),
			attribute.String(telemetry.WorkflowIDKey, wf.ID),
		),
	)
	defer span.End()

	r := &run{
		wf:         wf,
		event:      event,
		graph:      graph.New(wf.Nodes, wf.Edges),
		builder:    expressions.NewContextBuilder(env),
		report:     report,
		fired:      make(map[string]bool),
		conditions: make(map[string]bool),
	}

	if e.validator != nil {
		report.Diagnostics.Merge(e.validator.ValidateEvent(event, nil))
	}
	for _, i := range r.graph.DanglingEdges() {
		edge := wf.Edges[i]
		report.Diagnostics.AddWarning("", fmt.Sprintf("edges[%d]", i), schema.KindDanglingEdge,
			fmt.Sprintf("edge %s -> %s references a missing node; ignored", edge.Source, edge.Target))
	}

	order, blocked := r.graph.TopologicalOrder()
	for _, id := range r.graph.Cyclic() {
		report.Diagnostics.AddWarning(id, "", schema.KindCycle,
			fmt.Sprintf("node %q is part of a cycle", id))
	}
	if len(blocked) > 0 {
		logging.LogWith(ctx, e.logger).Warn("cyclic nodes evaluated in declaration order",
			slog.Int("count", len(blocked)))
	}

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "evaluation cancelled")
			span.RecordError(err)
			return nil, schema.NewError(schema.ErrCodeEvaluation, "evaluation cancelled").WithCause(err)
		}
		node, _ := r.graph.Node(id)
		e.evaluateNode(logging.WithNodeID(ctx, id), r, *node)
	}

	elapsed := time.Since(started)
	report.DurationMs = elapsed.Milliseconds()
	span.SetAttributes(
		attribute.Bool(telemetry.TriggeredKey, report.Triggered),
		attribute.Int(telemetry.EligibleKey, len(report.EligibleActions())),
	)
	span.SetStatus(codes.Ok, "")
	e.metrics.RecordEvaluation(ctx, wf.ID, report.Triggered, elapsed)

	e.logger.InfoContext(ctx, "workflow evaluated",
		slog.Bool("triggered", report.Triggered),
		slog.Int("nodes", len(report.Nodes)),
		slog.Int("eligible_actions", len(report.EligibleActions())),
		slog.Int("diagnostics", len(report.Diagnostics)),
		slog.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

func (e *Evaluator) evaluateNode(ctx context.Context, r *run, node schema.WorkflowNode) {
	outcome := NodeOutcome{NodeID: node.ID, Type: node.Type}

	ctx, span := e.tracer.Start(ctx, "node:"+node.ID,
		trace.WithAttributes(
			attribute.String(telemetry.NodeIDKey, node.ID),
			attribute.String(telemetry.NodeTypeKey, string(node.Type)),
		),
	)
	defer func() {
		span.SetAttributes(attribute.String(telemetry.NodeStatusKey, string(outcome.Status)))
		e.metrics.RecordNode(ctx, string(node.Type), string(outcome.Status))
		span.End()
	}()

	kind, err := nodes.Decode(node)
	if err != nil {
		r.report.Diagnostics.AddError(node.ID, "data", schema.KindStructure, err.Error())
		outcome.Status = NodeFailed
		r.report.Nodes = append(r.report.Nodes, outcome)
		span.SetStatus(codes.Error, "invalid node data")
		span.RecordError(err)
		e.logger.DebugContext(ctx, "node data invalid", slog.String("error", err.Error()))
		return
	}

	switch n := kind.(type) {
	case *nodes.Trigger:
		e.evaluateTrigger(ctx, r, n, &outcome)
	case *nodes.Condition:
		e.evaluateCondition(ctx, r, n, &outcome)
	case *nodes.Action:
		e.evaluateAction(ctx, r, n, &outcome)
	default:
		n.Validate(&r.report.Diagnostics)
		outcome.Status = NodeSkipped
	}

	if outcome.Output != nil {
		// Node ids are unique in the graph index, so this cannot collide.
		_ = r.builder.AddNodeOutput(node.ID, outcome.Output)
	}
	r.report.Nodes = append(r.report.Nodes, outcome)
	e.logger.DebugContext(ctx, "node evaluated",
		slog.String("type", string(node.Type)),
		slog.String("status", string(outcome.Status)),
	)
}

// spanName prefers the workflow name, then its id.
func spanName(wf *schema.Workflow) string {
	switch {
	case wf.Name != "":
		return wf.Name
	case wf.ID != "":
		return wf.ID
	default:
		return "workflow"
	}
}

// liveOptions are the resolver options for the fields of nodeID.
func liveOptions(nodeID, field string) expressions.Options {
	return expressions.Options{Mode: expressions.Live, NodeID: nodeID, Field: field}
}

// --- Trigger ---

func (e *Evaluator) evaluateTrigger(ctx context.Context, r *run, n *nodes.Trigger, outcome *NodeOutcome) {
	to := TriggerOutcome{NodeID: n.ID, Enabled: n.Data.Enabled, Scheduled: n.IsScheduled()}

	// The event is what the trigger exposes, fired or not.
	outcome.Output = r.event
	outcome.Status = NodeEvaluated

	switch {
	case !n.Data.Enabled:
		outcome.Status = NodeSkipped
	case to.Scheduled:
		// Scheduled triggers fire on their cron expression, not on events.
		outcome.Status = NodeSkipped
		if next, err := n.NextRun(r.report.StartedAt); err == nil {
			to.NextRun = &next
		}
	default:
		ectx := r.builder.ForNode(r.graph.Ancestors(n.ID))
		rules, diags := e.resolver.ResolveRules(n.Data.Filters, ectx, liveOptions(n.ID, ""))
		r.report.Diagnostics.Merge(diags)

		result := e.filter.EvaluateDetailed(rules, n.Data.Logic(), r.event,
			filter.Options{NodeID: n.ID, Fields: nodes.EventFieldTypes()})
		r.report.Diagnostics.Merge(result.Diagnostics)
		to.Rules = result.Rules
		to.Fired = result.Matched
	}

	if to.Fired {
		r.fired[n.ID] = true
		r.report.Triggered = true
	}
	r.report.Triggers = append(r.report.Triggers, to)
	e.logger.DebugContext(ctx, "trigger filters evaluated",
		slog.Bool("enabled", to.Enabled),
		slog.Bool("fired", to.Fired),
		slog.Int("rules", len(n.Data.Filters)),
	)
}

// --- Condition ---

func (e *Evaluator) evaluateCondition(ctx context.Context, r *run, n *nodes.Condition, outcome *NodeOutcome) {
	ectx := r.builder.ForNode(r.graph.Ancestors(n.ID))
	outcome.Status = NodeEvaluated

	var result bool
	var value any
	if n.UsesExpression() {
		ok, err := e.engines.EvaluateCondition(ctx, n.Data.Language, n.Data.Expression, ectx)
		if err != nil {
			r.report.Diagnostics.AddError(n.ID, "expression", schema.KindInvalidExpression, err.Error())
		}
		result = ok
		value = n.Data.Value.Any()
	} else {
		result, value = e.compare(r, n, ectx)
	}

	r.conditions[n.ID] = result
	outcome.Output = map[string]any{
		"result": result,
		"field":  n.Data.Field,
		"value":  value,
	}
}

// compare evaluates a field comparison. A field written as an expression
// is resolved against upstream outputs; a plain field is read from the event.
func (e *Evaluator) compare(r *run, n *nodes.Condition, ectx *expressions.ExpressionContext) (bool, any) {
	rule := e.resolver.ResolveRule(n.Rule(), ectx, liveOptions(n.ID, "value"), &r.report.Diagnostics)

	var (
		actual  any
		present bool
		opts    = filter.Options{NodeID: n.ID}
	)
	if expressions.IsExpression(n.Data.Field) {
		val, res := e.resolver.ResolveValue(n.Data.Field, ectx, liveOptions(n.ID, "field"))
		r.report.Diagnostics.Merge(res.Diagnostics)
		actual, present = val, len(res.Unresolved) == 0 && val != nil
		if ft, ok := expressions.ReferencedType(r.graph, n.Data.Field); ok {
			opts.Fields = schema.FieldTypes{n.Data.Field: ft}
		}
	} else {
		actual, present = schema.LookupField(r.event, n.Data.Field)
		if ft, ok := nodes.EventFieldTypes()[n.Data.Field]; ok {
			opts.Fields = schema.FieldTypes{n.Data.Field: ft}
		}
	}

	matched, diags := e.filter.MatchValue(rule, schema.FromAny(actual), present, opts)
	r.report.Diagnostics.Merge(diags)
	return matched, rule.Value.Any()
}

// --- Action ---

func (e *Evaluator) evaluateAction(ctx context.Context, r *run, n *nodes.Action, outcome *NodeOutcome) {
	ancestors := r.graph.Ancestors(n.ID)
	ectx := r.builder.ForNode(ancestors)
	outcome.Status = NodeEvaluated

	cfg, diags, err := e.resolver.ResolveJSON(n.Data.Config, ectx, liveOptions(n.ID, "config"))
	r.report.Diagnostics.Merge(diags)
	if err != nil {
		r.report.Diagnostics.AddError(n.ID, "config", schema.KindInvalidValue, err.Error())
	}
	outcome.Config = cfg

	outcome.Eligible = r.eligible(ancestors)
	outcome.Output = map[string]any{
		"success":    outcome.Eligible,
		"actionType": n.Data.ActionType,
	}
	e.logger.DebugContext(ctx, "action config resolved",
		slog.String("action_type", n.Data.ActionType),
		slog.Bool("eligible", outcome.Eligible),
	)
}

// eligible reports whether a fired trigger is among ancestors and every
// ancestor condition evaluated true.
func (r *run) eligible(ancestors []string) bool {
	fired := false
	for _, id := range ancestors {
		if r.fired[id] {
			fired = true
		}
		if result, ok := r.conditions[id]; ok && !result {
			return false
		}
	}
	return fired
}
