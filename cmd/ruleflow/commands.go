package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/filter"
	"github.com/rendis/ruleflow/internal/graph"
	"github.com/rendis/ruleflow/internal/nodes"
	"github.com/rendis/ruleflow/pkg/mcp"
	"github.com/rendis/ruleflow/pkg/schema"
)

func (a *app) runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewRuleflowServer(mcp.RuleflowServerDeps{
		Evaluator: a.evaluator,
		Validator: a.validator,
		Resolver:  a.resolver,
		Env:       a.env,
		Version:   version,
		Logger:    a.logger,
	})
	a.logger.Info("ruleflow MCP server starting", "version", version, "env_vars", len(a.env))
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return fail(stderr, err)
	}
	return 0
}

func (a *app) runEvaluate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	workflowPath := fs.String("workflow", "", "workflow JSON or YAML file (- for stdin)")
	eventPath := fs.String("event", "", "event JSON or YAML file")
	envPath := fs.String("env", "", "JSON or YAML file of extra $env values")
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

	var event, extra map[string]any
	if err := readJSON(*eventPath, &event); err != nil {
		return fail(stderr, err)
	}
	if err := readJSON(*envPath, &extra); err != nil {
		return fail(stderr, err)
	}

	report, err := a.evaluator.Evaluate(context.Background(), wf, event, a.mergeEnv(extra))
	if err != nil {
		return fail(stderr, err)
	}
	if err := writeJSON(stdout, report); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func (a *app) runResolve(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	template := fs.String("template", "", "template text to resolve")
	nodesPath := fs.String("nodes", "", "JSON object of node outputs keyed by node id")
	workflowPath := fs.String("workflow", "", "workflow JSON or YAML file, for previewing against example values")
	nodeID := fs.String("node", "", "node the template belongs to")
	field := fs.String("field", "", "field the template belongs to")
	modeFlag := fs.String("mode", "live", "live or preview")
	envPath := fs.String("env", "", "JSON or YAML file of extra $env values")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	mode, err := expressions.ParseMode(*modeFlag)
	if err != nil {
		return fail(stderr, err)
	}
	var extra map[string]any
	if err := readJSON(*envPath, &extra); err != nil {
		return fail(stderr, err)
	}
	env := a.mergeEnv(extra)
	opts := expressions.Options{Mode: mode, NodeID: *nodeID, Field: *field}

	var ectx *expressions.ExpressionContext
	switch {
	case *nodesPath != "":
		var outputs map[string]map[string]any
		if err := readJSON(*nodesPath, &outputs); err != nil {
			return fail(stderr, err)
		}
		ectx = expressions.NewContext(outputs, env)
	case *workflowPath != "" && *nodeID != "":
		wf, diags, err := a.readWorkflow(*workflowPath)
		if err != nil {
			return fail(stderr, err)
		}
		if wf == nil {
			printDiagnostics(stderr, diags)
			return 1
		}
		available := expressions.Available(graph.New(wf.Nodes, wf.Edges), *nodeID)
		opts.Variables = expressions.Catalog(available)
		ectx = expressions.PreviewContext(available, env)
	default:
		ectx = expressions.NewContext(nil, env)
	}

	res := a.resolver.Resolve(*template, ectx, opts)
	if err := writeJSON(stdout, res); err != nil {
		return fail(stderr, err)
	}
	if !res.Diagnostics.Valid() {
		return 1
	}
	return 0
}

func (a *app) runValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	workflowPath := fs.String("workflow", "", "workflow JSON or YAML file (- for stdin)")
	asJSON := fs.Bool("json", false, "print diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *workflowPath == "" && fs.NArg() > 0 {
		*workflowPath = fs.Arg(0)
	}

	_, diags, err := a.readWorkflow(*workflowPath)
	if err != nil {
		return fail(stderr, err)
	}

	if *asJSON {
		if diags == nil {
			diags = schema.Diagnostics{}
		}
		if err := writeJSON(stdout, diags); err != nil {
			return fail(stderr, err)
		}
	} else {
		printDiagnostics(stdout, diags)
		fmt.Fprintf(stdout, "%d error(s), %d warning(s)\n", len(diags.Errors()), len(diags.Warnings()))
	}
	if !diags.Valid() {
		return 1
	}
	return 0
}

func (a *app) runVars(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vars", flag.ContinueOnError)
	fs.SetOutput(stderr)
	workflowPath := fs.String("workflow", "", "workflow JSON or YAML file (- for stdin)")
	nodeID := fs.String("node", "", "node to list variables for")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *nodeID == "" {
		return fail(stderr, schema.NewError(schema.ErrCodeInvalidInput, "-node is required"))
	}

	wf, diags, err := a.readWorkflow(*workflowPath)
	if err != nil {
		return fail(stderr, err)
	}
	if wf == nil {
		printDiagnostics(stderr, diags)
		return 1
	}

	g := graph.New(wf.Nodes, wf.Edges)
	if _, ok := g.Node(*nodeID); !ok {
		return fail(stderr, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found in workflow", *nodeID))
	}
	for _, nv := range expressions.Available(g, *nodeID) {
		fmt.Fprintf(stdout, "%s (%s)\n", nv.NodeID, nv.NodeType)
		for _, v := range nv.Variables {
			fmt.Fprintf(stdout, "  %-40s %s\n", v.InsertText, v.Type)
		}
	}
	return 0
}

// runOperators needs no configuration: the catalogs are static.
func runOperators(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("operators", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fieldType := fs.String("type", "", "only list operators applicable to this field type")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ops := filter.Operators()
	if *fieldType != "" {
		ops = filter.OperatorsFor(schema.FieldType(*fieldType))
		if len(ops) == 0 {
			return fail(stderr, schema.NewErrorf(schema.ErrCodeInvalidInput, "unknown field type %q", *fieldType))
		}
	}

	fmt.Fprintln(stdout, "operators:")
	for _, op := range ops {
		fmt.Fprintf(stdout, "  %-14s %v\n", op, filter.AcceptedTypes(op))
	}
	fmt.Fprintln(stdout, "event fields:")
	for _, f := range nodes.EventFields() {
		fmt.Fprintf(stdout, "  %-14s %s\n", f.Path, f.Type)
	}
	return 0
}
