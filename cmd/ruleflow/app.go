package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/ruleflow/internal/engine"
	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/filter"
	"github.com/rendis/ruleflow/internal/logging"
	"github.com/rendis/ruleflow/internal/telemetry"
	"github.com/rendis/ruleflow/internal/validation"
	"github.com/rendis/ruleflow/pkg/schema"
	"gopkg.in/yaml.v3"
)

// app holds the components shared by the subcommands.
type app struct {
	cfg       Config
	logger    *slog.Logger
	resolver  *expressions.Resolver
	validator *validation.Validator
	evaluator *engine.Evaluator
	env       map[string]string

	// shutdown flushes the OTLP exporter, when one is installed.
	shutdown func(context.Context) error
}

func newApp(cfg Config, logOut io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(logOut, level, cfg.LogJSON)

	shutdown := func(context.Context) error { return nil }
	if cfg.OTLP {
		tp, err := telemetry.NewTracerProvider(context.Background(), "ruleflow", version)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		shutdown = tp.Shutdown
	}

	resolver := expressions.NewResolver(expressions.WithPlaceholder(cfg.Placeholder))
	validator, err := validation.New()
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}
	evaluator, err := engine.New(engine.Options{
		Logger:    logger,
		Resolver:  resolver,
		Filter:    filter.New(filter.WithMatchTimeout(cfg.matchTimeout())),
		Validator: validator,
	})
	if err != nil {
		return nil, fmt.Errorf("build evaluator: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		resolver:  resolver,
		validator: validator,
		evaluator: evaluator,
		env:       cfg.env(os.Environ()),
		shutdown:  shutdown,
	}, nil
}

// close flushes telemetry. Errors are logged, never returned.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

// --- Input/output helpers ---

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// readDocument reads path and returns its content as JSON. Files ending in
// .yaml or .yml are converted first.
func readDocument(path string) ([]byte, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	if !isYAML(path) {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "invalid YAML in %s", path).WithCause(err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "convert %s to JSON", path).WithCause(err)
	}
	return out, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// readJSON decodes the file at path into v. An empty path leaves v untouched.
func readJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := readDocument(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return schema.NewErrorf(schema.ErrCodeDecode, "invalid JSON in %s", path).WithCause(err)
	}
	return nil
}

// readWorkflow loads and validates a workflow document. Structural problems
// are returned as diagnostics with a nil workflow.
func (a *app) readWorkflow(path string) (*schema.Workflow, schema.Diagnostics, error) {
	if path == "" {
		return nil, nil, schema.NewError(schema.ErrCodeInvalidInput, "-workflow is required")
	}
	data, err := readDocument(path)
	if err != nil {
		return nil, nil, err
	}
	wf, diags := a.validator.ValidateDocument(data)
	return wf, diags, nil
}

// mergeEnv layers values from an env file over the process environment.
func (a *app) mergeEnv(extra map[string]any) map[string]string {
	env := make(map[string]string, len(a.env)+len(extra))
	for k, v := range a.env {
		env[k] = v
	}
	for k, v := range extra {
		env[k] = expressions.Stringify(v)
	}
	return env
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func printDiagnostics(w io.Writer, diags schema.Diagnostics) {
	for _, d := range diags {
		var loc string
		switch {
		case d.NodeID != "" && d.Field != "":
			loc = d.NodeID + "." + d.Field
		case d.NodeID != "":
			loc = d.NodeID
		case d.Field != "":
			loc = d.Field
		default:
			loc = "workflow"
		}
		fmt.Fprintf(w, "%-7s %s [%s] %s\n", d.Severity, loc, d.Kind, d.Message)
	}
}
