package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/ruleflow/internal/diagram"
	"github.com/rendis/ruleflow/internal/engine"
	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/filter"
	"github.com/rendis/ruleflow/internal/graph"
	"github.com/rendis/ruleflow/internal/nodes"
	"github.com/rendis/ruleflow/pkg/schema"
)

// fieldTypes lists the field types accepted by ruleflow.operators.
var fieldTypes = []schema.FieldType{
	schema.FieldString,
	schema.FieldNumber,
	schema.FieldBoolean,
	schema.FieldSelect,
	schema.FieldMultiselect,
}

// handleEvaluate runs a workflow against an event.
func (s *RuleflowServer) handleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.evaluator == nil {
		return mcp.NewToolResultError("evaluation is not configured on this server"), nil
	}
	wf, errResult := parseWorkflow(req)
	if errResult != nil {
		return errResult, nil
	}

	event := mcp.ParseStringMap(req, "event", nil)
	env := s.mergeEnv(mcp.ParseStringMap(req, "env", nil))

	report, err := s.evaluator.Evaluate(ctx, wf, event, env)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}
	return marshalResult(report)
}

// handleResolve renders a template against node outputs, or against the
// example values of a node's ancestors.
func (s *RuleflowServer) handleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	template, err := req.RequireString("template")
	if err != nil {
		return mcp.NewToolResultError("template is required"), nil
	}
	mode, err := expressions.ParseMode(req.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := expressions.Options{
		Mode:   mode,
		NodeID: req.GetString("node_id", ""),
		Field:  req.GetString("field", ""),
	}
	env := s.mergeEnv(mcp.ParseStringMap(req, "env", nil))

	var ectx *expressions.ExpressionContext
	rawNodes := mcp.ParseStringMap(req, "nodes", nil)
	switch {
	case rawNodes != nil:
		outputs, convErr := nodeOutputs(rawNodes)
		if convErr != nil {
			return mcp.NewToolResultError(convErr.Error()), nil
		}
		ectx = expressions.NewContext(outputs, env)
	case opts.NodeID != "" && mcp.ParseStringMap(req, "workflow", nil) != nil:
		wf, errResult := parseWorkflow(req)
		if errResult != nil {
			return errResult, nil
		}
		available := expressions.Available(graph.New(wf.Nodes, wf.Edges), opts.NodeID)
		opts.Variables = expressions.Catalog(available)
		ectx = expressions.PreviewContext(available, env)
	default:
		ectx = expressions.NewContext(nil, env)
	}

	res := s.resolver.Resolve(template, ectx, opts)
	s.logger.DebugContext(ctx, "template resolved",
		"mode", mode.String(),
		"resolved", res.Resolved,
		"unresolved", len(res.Unresolved),
	)
	return marshalResult(res)
}

// handleVariables lists what a node may reference.
func (s *RuleflowServer) handleVariables(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	wf, errResult := parseWorkflow(req)
	if errResult != nil {
		return errResult, nil
	}

	g := graph.New(wf.Nodes, wf.Edges)
	if _, ok := g.Node(nodeID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("node %q not found in workflow", nodeID)), nil
	}

	available := expressions.Available(g, nodeID)
	if available == nil {
		available = []expressions.NodeVariables{}
	}
	return marshalResult(map[string]any{
		"nodeId":    nodeID,
		"available": available,
	})
}

// handleValidate runs the full validation pipeline on a workflow document.
func (s *RuleflowServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.validator == nil {
		return mcp.NewToolResultError("validation is not configured on this server"), nil
	}
	raw := mcp.ParseStringMap(req, "workflow", nil)
	if raw == nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", err)), nil
	}

	_, diags := s.validator.ValidateDocument(doc)
	if diags == nil {
		diags = schema.Diagnostics{}
	}
	return marshalResult(map[string]any{
		"valid":       diags.Valid(),
		"errors":      len(diags.Errors()),
		"warnings":    len(diags.Warnings()),
		"diagnostics": diags,
	})
}

type operatorInfo struct {
	Operator schema.Operator    `json:"operator"`
	Types    []schema.FieldType `json:"types"`
}

// handleOperators lists the operator catalog and the event fields.
func (s *RuleflowServer) handleOperators(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ops := filter.Operators()
	if ft := schema.FieldType(req.GetString("field_type", "")); ft != "" {
		if !knownFieldType(ft) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown field type %q", ft)), nil
		}
		ops = filter.OperatorsFor(ft)
	}

	infos := make([]operatorInfo, len(ops))
	for i, op := range ops {
		infos[i] = operatorInfo{Operator: op, Types: filter.AcceptedTypes(op)}
	}
	return marshalResult(map[string]any{
		"operators": infos,
		"fields":    nodes.EventFields(),
	})
}

// handleDiagram renders a workflow as Mermaid or ASCII text. With an event,
// the workflow is evaluated first and the diagram carries the outcome.
func (s *RuleflowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, errResult := parseWorkflow(req)
	if errResult != nil {
		return errResult, nil
	}

	var report *engine.Report
	if event := mcp.ParseStringMap(req, "event", nil); event != nil {
		if s.evaluator == nil {
			return mcp.NewToolResultError("evaluation is not configured on this server"), nil
		}
		var err error
		report, err = s.evaluator.Evaluate(ctx, wf, event, s.mergeEnv(mcp.ParseStringMap(req, "env", nil)))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
		}
	}

	model, err := diagram.Build(wf, report)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch format := req.GetString("format", "mermaid"); format {
	case "mermaid", "":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unsupported format %q", format)), nil
	}
}

// --- Helpers ---

// parseWorkflow decodes the workflow argument.
func parseWorkflow(req mcp.CallToolRequest) (*schema.Workflow, *mcp.CallToolResult) {
	raw := mcp.ParseStringMap(req, "workflow", nil)
	if raw == nil {
		return nil, mcp.NewToolResultError("workflow is required")
	}
	// Marshal then unmarshal to get a proper Workflow.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", err))
	}
	var wf schema.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", err))
	}
	return &wf, nil
}

// nodeOutputs converts the nodes argument to outputs keyed by node ID.
func nodeOutputs(raw map[string]any) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(raw))
	for id, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("output of node %q must be an object, got %T", id, v)
		}
		out[id] = m
	}
	return out, nil
}

// mergeEnv layers call-provided values over the server environment.
func (s *RuleflowServer) mergeEnv(extra map[string]any) map[string]string {
	env := make(map[string]string, len(s.env)+len(extra))
	for k, v := range s.env {
		env[k] = v
	}
	for k, v := range extra {
		env[k] = expressions.Stringify(v)
	}
	return env
}

func knownFieldType(ft schema.FieldType) bool {
	for _, known := range fieldTypes {
		if known == ft {
			return true
		}
	}
	return false
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
