package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records counters and histograms for evaluations and their nodes.
type Metrics struct {
	evaluations metric.Int64Counter
	triggered   metric.Int64Counter
	nodes       metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewMetrics creates the instruments on meter. A nil meter uses the global
// provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	evaluations, err := meter.Int64Counter("ruleflow.evaluations",
		metric.WithDescription("Number of workflow evaluations"),
	)
	if err != nil {
		return nil, err
	}

	triggered, err := meter.Int64Counter("ruleflow.evaluations.triggered",
		metric.WithDescription("Number of evaluations in which at least one trigger fired"),
	)
	if err != nil {
		return nil, err
	}

	nodes, err := meter.Int64Counter("ruleflow.node.evaluations",
		metric.WithDescription("Number of node evaluations by type and status"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("ruleflow.evaluation.duration",
		metric.WithDescription("Duration of workflow evaluation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		evaluations: evaluations,
		triggered:   triggered,
		nodes:       nodes,
		duration:    duration,
	}, nil
}

// RecordNode counts one node outcome.
func (m *Metrics) RecordNode(ctx context.Context, nodeType, status string) {
	m.nodes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_type", nodeType),
		attribute.String("status", status),
	))
}

// RecordEvaluation counts one finished evaluation and records its duration.
func (m *Metrics) RecordEvaluation(ctx context.Context, workflowID string, triggered bool, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("workflow_id", workflowID))
	m.evaluations.Add(ctx, 1, attrs)
	if triggered {
		m.triggered.Add(ctx, 1, attrs)
	}
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
