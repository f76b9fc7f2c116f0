package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/ruleflow/internal/engine"
	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/validation"
)

// RuleflowServerDeps holds the dependencies for creating a RuleflowServer.
type RuleflowServerDeps struct {
	Evaluator *engine.Evaluator
	Validator *validation.Validator
	Resolver  *expressions.Resolver

	// Env is the base $env namespace. Tool calls may add to it.
	Env     map[string]string
	Version string
	Logger  *slog.Logger
}

// RuleflowServer wraps an MCP server with ruleflow-specific tool handlers.
type RuleflowServer struct {
	evaluator *engine.Evaluator
	validator *validation.Validator
	resolver  *expressions.Resolver
	env       map[string]string
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewRuleflowServer creates a new RuleflowServer with all 6 tools registered.
func NewRuleflowServer(deps RuleflowServerDeps) *RuleflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = expressions.NewResolver()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &RuleflowServer{
		evaluator: deps.Evaluator,
		validator: deps.Validator,
		resolver:  resolver,
		env:       deps.Env,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"ruleflow",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Ruleflow evaluates workflow automation rules. Use ruleflow.validate to check a node/edge graph, ruleflow.variables to list what a node can reference, ruleflow.resolve to render {{ $node.<id>.<path> }} and {{ $env.<NAME> }} templates, ruleflow.evaluate to run a graph against an event, ruleflow.diagram to draw a graph and ruleflow.operators to list filter operators per field type."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *RuleflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *RuleflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 6 registered MCP tools as ServerTool entries.
func (s *RuleflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: evaluateTool(), Handler: s.handleEvaluate},
		{Tool: resolveTool(), Handler: s.handleResolve},
		{Tool: variablesTool(), Handler: s.handleVariables},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: operatorsTool(), Handler: s.handleOperators},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func evaluateTool() mcp.Tool {
	return mcp.NewTool("ruleflow.evaluate",
		mcp.WithDescription("Evaluate a workflow graph against an inbound event"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Workflow graph: {id, name, nodes: [{id, type, data}], edges: [{source, target}]}")),
		mcp.WithObject("event", mcp.Description("Event payload, a flat key/value object")),
		mcp.WithObject("env", mcp.Description("Values for the $env namespace, merged over the server environment")),
	)
}

func resolveTool() mcp.Tool {
	return mcp.NewTool("ruleflow.resolve",
		mcp.WithDescription("Resolve {{ }} references in a template"),
		mcp.WithString("template", mcp.Required(), mcp.Description("Template text, e.g. \"Alert for {{ $node.trigger1.amount }}\"")),
		mcp.WithObject("nodes", mcp.Description("Node outputs keyed by node ID (live mode)")),
		mcp.WithObject("env", mcp.Description("Values for the $env namespace")),
		mcp.WithString("mode",
			mcp.Enum(expressions.Live.String(), expressions.Preview.String()),
			mcp.Description("live reports unresolved references as errors; preview renders placeholders (default: live)"),
		),
		mcp.WithObject("workflow", mcp.Description("Workflow graph; with node_id and no nodes, example values of the node's ancestors are used")),
		mcp.WithString("node_id", mcp.Description("Node the template belongs to")),
		mcp.WithString("field", mcp.Description("Field the template belongs to, reported on diagnostics")),
	)
}

func variablesTool() mcp.Tool {
	return mcp.NewTool("ruleflow.variables",
		mcp.WithDescription("List the variables a node can reference"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Workflow graph")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node being edited")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("ruleflow.validate",
		mcp.WithDescription("Validate a workflow graph"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Workflow graph")),
	)
}

func operatorsTool() mcp.Tool {
	types := make([]string, 0, 5)
	for _, ft := range fieldTypes {
		types = append(types, string(ft))
	}
	return mcp.NewTool("ruleflow.operators",
		mcp.WithDescription("List filter operators and the event field catalog"),
		mcp.WithString("field_type",
			mcp.Enum(types...),
			mcp.Description("Only list operators applicable to this field type"),
		),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("ruleflow.diagram",
		mcp.WithDescription("Draw a workflow graph, optionally overlaid with an evaluation"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Workflow graph")),
		mcp.WithObject("event", mcp.Description("When set, the graph is evaluated against this event and each node shows its outcome")),
		mcp.WithObject("env", mcp.Description("Values for the $env namespace, used with event")),
		mcp.WithString("format",
			mcp.Enum("mermaid", "ascii"),
			mcp.Description("Output format (default: mermaid)"),
		),
	)
}
