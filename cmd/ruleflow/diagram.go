package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rendis/ruleflow/internal/diagram"
	"github.com/rendis/ruleflow/internal/engine"
)

func (a *app) runDiagram(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("diagram", flag.ContinueOnError)
	fs.SetOutput(stderr)
	workflowPath := fs.String("workflow", "", "workflow JSON or YAML file (- for stdin)")
	eventPath := fs.String("event", "", "event JSON or YAML file; when set, nodes show their evaluation outcome")
	envPath := fs.String("env", "", "JSON or YAML file of extra $env values")
	format := fs.String("format", "mermaid", "mermaid, ascii, png or svg")
	out := fs.String("out", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	wf, diags, err := a.readWorkflow(*workflowPath)
	if err != nil {
		return fail(stderr, err)
	}
	if wf == nil {
		printDiagnostics(stderr, diags)
		return 1
	}

	ctx := context.Background()
	var report *engine.Report
	if *eventPath != "" {
		var event, extra map[string]any
		if err := readJSON(*eventPath, &event); err != nil {
			return fail(stderr, err)
		}
		if err := readJSON(*envPath, &extra); err != nil {
			return fail(stderr, err)
		}
		if report, err = a.evaluator.Evaluate(ctx, wf, event, a.mergeEnv(extra)); err != nil {
			return fail(stderr, err)
		}
	}

	model, err := diagram.Build(wf, report)
	if err != nil {
		return fail(stderr, err)
	}

	var data []byte
	switch *format {
	case "mermaid":
		data = []byte(diagram.RenderMermaid(model))
	case "ascii":
		data = []byte(diagram.RenderASCII(model))
	case "png", "svg":
		if data, err = diagram.RenderImage(ctx, model, diagram.ImageFormat(*format)); err != nil {
			return fail(stderr, err)
		}
	default:
		return fail(stderr, fmt.Errorf("unknown format %q", *format))
	}

	if *out == "" {
		if _, err := stdout.Write(data); err != nil {
			return fail(stderr, err)
		}
		return 0
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stderr, "Diagram written to %s\n", *out)
	return 0
}
