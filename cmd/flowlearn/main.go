/*
Package main is the entry point for the flowlearn CLI.

flowlearn learns tool workflows from AI agent execution traces and serves
them back as suggestions over MCP.

Usage:
  flowlearn [command]

Available Commands:
  serve       Run the MCP server (stdio transport)
  simulate    Run a scripted learning scenario against the engine
  report      Print validation and analytics reports as JSON
  learning    Manage learned patterns and tool usage history
  config      Manage the configuration file
  version     Show version information

Examples:
  # Write the default configuration
  flowlearn config init

  # Run as MCP server
  flowlearn serve

  # Watch the flow scenario learn a workflow
  flowlearn simulate --scenario flow --report
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/khanglvm/flowlearn/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
