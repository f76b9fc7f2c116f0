package main

import (
	"fmt"
	"io"
	"os"
)

const usage = `usage: ruleflow <command> [flags]

commands:
  serve       run the MCP tool server on stdio
  evaluate    evaluate a workflow against an event
  resolve     resolve {{ }} references in a template
  validate    validate a workflow document
  vars        list the variables a node can reference
  diagram     draw a workflow as mermaid, ascii, png or svg
  operators   list filter operators and event fields
  version     print the version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version", "-v", "--version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	case "operators":
		return runOperators(rest, stdout, stderr)
	}

	a, err := newApp(loadConfig(), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	switch cmd {
	case "serve":
		return a.runServe(rest, stderr)
	case "evaluate":
		return a.runEvaluate(rest, stdout, stderr)
	case "resolve":
		return a.runResolve(rest, stdout, stderr)
	case "validate":
		return a.runValidate(rest, stdout, stderr)
	case "vars":
		return a.runVars(rest, stdout, stderr)
	case "diagram":
		return a.runDiagram(rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}
