package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/khanglvm/flowlearn/internal/mcp"
	"github.com/khanglvm/flowlearn/internal/metrics"
	"github.com/khanglvm/flowlearn/internal/version"
)

// NewServeCmd creates the 'serve' command for running the MCP server.
//
// This is the main command that exposes the learning engine via stdio
// transport, optionally with a Prometheus endpoint.
func NewServeCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the flowlearn MCP server using stdio transport.

This server exposes the learning engine to AI clients:
  • track_execution      - Record a completed run
  • suggest_pattern      - Get a learned workflow for a request
  • submit_feedback      - Rate a suggestion
  • get_pattern          - Inspect a learned pattern
  • search_patterns      - Find learned patterns by keyword
  • learning_metrics     - Summarise what has been learned
  • tool_recommendations - Rank candidate tools
  • validation_report    - Evaluate the learning success criteria

Learned state is restored from and written to the configured SQLite store.
When metrics.enabled is set, Prometheus metrics are served on metrics.address.`,
		Example: `  # Run directly
  flowlearn serve

  # Add to Claude Code
  claude mcp add flowlearn -- flowlearn serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	return cmd
}

// runServe starts the MCP server with stdio transport and signal handling.
// Implements graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
func runServe(parent context.Context, opts *GlobalOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	m := metrics.New()
	rt, err := openEngine(ctx, opts, true, m)
	if err != nil {
		return err
	}
	defer rt.Close()

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "flowlearn",
		Version: version.Implementation(),
		Logger:  rt.logger,
	}, rt.engine)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Stdin closing ends the session and with it the metrics endpoint.
		defer cancel()
		return server.Run(gctx)
	})
	if rt.cfg.Metrics.Enabled {
		g.Go(func() error {
			return m.Serve(gctx, rt.cfg.Metrics.Address, rt.logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	rt.logger.Info("shutdown complete")
	return nil
}
