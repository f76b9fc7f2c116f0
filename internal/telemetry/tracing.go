// Package telemetry wires OpenTelemetry tracing and metrics for workflow
// evaluations.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer and meter of the engine.
const InstrumentationName = "github.com/rendis/ruleflow/internal/engine"

// Common attribute keys.
const (
	EvaluationIDKey = "ruleflow.evaluation.id"
	WorkflowIDKey   = "ruleflow.workflow.id"
	NodeIDKey       = "ruleflow.node.id"
	NodeTypeKey     = "ruleflow.node.type"
	NodeStatusKey   = "ruleflow.node.status"
	TriggeredKey    = "ruleflow.triggered"
	EligibleKey     = "ruleflow.eligible_actions"
)

// Tracer returns the engine tracer from the global provider. It is a no-op
// until a provider is installed.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// NewTracerProvider builds a provider exporting spans over OTLP/HTTP and
// installs it globally. The exporter reads the standard OTEL_EXPORTER_OTLP_*
// environment variables. Callers must Shutdown the provider to flush spans.
func NewTracerProvider(ctx context.Context, serviceName, version string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
