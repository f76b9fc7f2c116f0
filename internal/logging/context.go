// Package logging carries evaluation correlation ids through context and
// injects them into slog records.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	workflowIDKey ctxKey = iota
	nodeIDKey
	evaluationIDKey
)

// correlation lists the context keys copied onto records, in output order.
var correlation = []struct {
	key  ctxKey
	attr string
}{
	{evaluationIDKey, "evaluation_id"},
	{workflowIDKey, "workflow_id"},
	{nodeIDKey, "node_id"},
}

// WithWorkflowID returns a context with the workflow ID set.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WithNodeID returns a context with the node ID set.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

// WithEvaluationID returns a context with the evaluation ID set.
func WithEvaluationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, evaluationIDKey, id)
}

// WorkflowID extracts the workflow ID from the context, or "" if absent.
func WorkflowID(ctx context.Context) string { return value(ctx, workflowIDKey) }

// NodeID extracts the node ID from the context, or "" if absent.
func NodeID(ctx context.Context) string { return value(ctx, nodeIDKey) }

// EvaluationID extracts the evaluation ID from the context, or "" if absent.
func EvaluationID(ctx context.Context) string { return value(ctx, evaluationIDKey) }

func value(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithIDs sets the evaluation and workflow IDs on the context at once.
// Empty values are left unset.
func WithIDs(ctx context.Context, evaluationID, workflowID string) context.Context {
	if evaluationID != "" {
		ctx = WithEvaluationID(ctx, evaluationID)
	}
	if workflowID != "" {
		ctx = WithWorkflowID(ctx, workflowID)
	}
	return ctx
}

func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, c := range correlation {
		if v := value(ctx, c.key); v != "" {
			out = append(out, slog.String(c.attr, v))
		}
	}
	return out
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewLogger builds a correlation-aware logger writing text (or JSON when
// json is set) to w.
func NewLogger(w io.Writer, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler = slog.NewTextHandler(w, opts)
	if json {
		inner = slog.NewJSONHandler(w, opts)
	}
	return slog.New(NewCorrelationHandler(inner))
}
