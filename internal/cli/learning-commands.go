package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanglvm/flowlearn/internal/config"
)

// newLearningStatusCmd shows learning statistics.
func newLearningStatusCmd(opts *GlobalOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show learning statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openEngine(ctx, opts, true, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			status, err := rt.engine.Status(ctx)
			if err != nil {
				return err
			}
			lm := rt.engine.GetLearningMetrics(ctx, user)
			lc := rt.cfg.Learning

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Learning System Status")
			fmt.Fprintln(w, "======================")
			if status.Storage != nil && status.Storage.Enabled {
				fmt.Fprintf(w, "Storage: %s\n", status.Storage.Path)
			} else {
				fmt.Fprintln(w, "Storage: disabled (in-memory only)")
			}
			fmt.Fprintf(w, "Similarity threshold: %.2f\n", lc.SimilarityThreshold)
			fmt.Fprintf(w, "Suggestion confidence: >= %.2f\n", lc.ConfidenceThreshold)
			fmt.Fprintln(w)

			if user != "" {
				fmt.Fprintf(w, "User: %s\n", user)
			}
			fmt.Fprintf(w, "Patterns learned:      %d\n", lm.TotalPatternsLearned)
			fmt.Fprintf(w, "Confident patterns:    %d\n", lm.ConfidentPatterns)
			fmt.Fprintf(w, "Learning effectiveness: %.1f%%\n", lm.LearningEffectiveness*100)
			fmt.Fprintf(w, "Pattern executions:    %d\n", status.Executions)

			if s := status.Storage; s != nil && s.Enabled {
				fmt.Fprintln(w)
				fmt.Fprintln(w, "Stored rows:")
				fmt.Fprintf(w, "  patterns:           %d\n", s.Patterns)
				fmt.Fprintf(w, "  pattern executions: %d\n", s.PatternExecutions)
				fmt.Fprintf(w, "  tool usage:         %d\n", s.ToolUsages)
				fmt.Fprintf(w, "  tool combinations:  %d\n", s.Combinations)
				fmt.Fprintf(w, "  feedback metrics:   %d\n", s.FeedbackMetrics)
				fmt.Fprintf(w, "  execution metrics:  %d\n", s.ExecutionMetrics)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Note: Run 'flowlearn learning export' to view the learned state")

			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Only count this user's patterns")
	return cmd
}

// newLearningExportCmd exports the learned state as JSON.
func newLearningExportCmd(opts *GlobalOptions) *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the learned state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openEngine(cmd.Context(), opts, true, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			return writeJSON(cmd.OutOrStdout(), outputFile, rt.engine.Snapshot())
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// newLearningSearchCmd finds learned patterns by keyword.
func newLearningSearchCmd(opts *GlobalOptions) *cobra.Command {
	var (
		user  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search learned patterns by tool, tag or name",
		Example: `  flowlearn learning search slack
  flowlearn learning search "search_database send_slack" --user alice`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openEngine(ctx, opts, true, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			query := strings.Join(args, " ")
			matches, err := rt.engine.SearchPatterns(ctx, query, user, limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintf(w, "No patterns match %q\n", query)
				return nil
			}
			for _, m := range matches {
				p := m.Pattern
				fmt.Fprintf(w, "%-12s %6.3f  user=%s confidence=%.2f executions=%d\n",
					p.Name, m.Score, p.UserID, p.Confidence, p.TotalExecutions)
				fmt.Fprintf(w, "             id: %s\n", p.ID)
				fmt.Fprintf(w, "             %s\n", strings.Join(p.ToolNames(), " → "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Only search this user's patterns")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results")
	return cmd
}

// newLearningClearCmd deletes all learning data.
func newLearningClearCmd(opts *GlobalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all learning data",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if !yes {
				fmt.Fprint(w, "This will delete all learning data. Continue? (y/N): ")
				var response string
				_, _ = fmt.Fscanln(cmd.InOrStdin(), &response)

				if !strings.EqualFold(response, "y") {
					fmt.Fprintln(w, "Cancelled")
					return nil
				}
			}

			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store := openStore(cfg, logger)
			if store == nil {
				fmt.Fprintln(w, "Storage is disabled; no learning data found")
				return nil
			}
			if err := store.Init(); err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()

			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear learning data: %w", err)
			}

			fmt.Fprintln(w, "Learning data cleared successfully")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// newLearningDisableCmd turns off persistence.
func newLearningDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn off persistence",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "To disable persistence, set environment variable:")
			fmt.Fprintf(w, "  %sSTORAGE_ENABLED=false\n", config.EnvPrefix)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Or set in ~/.flowlearn/config.yaml:")
			fmt.Fprintln(w, "  storage:")
			fmt.Fprintln(w, "    enabled: false")

			return nil
		},
	}
}

// newLearningEnableCmd turns on persistence.
func newLearningEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Turn on persistence",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Persistence is enabled by default.")
			fmt.Fprintln(w, "To ensure it's active, unset environment variable:")
			fmt.Fprintf(w, "  unset %sSTORAGE_ENABLED\n", config.EnvPrefix)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Or remove storage.enabled: false from ~/.flowlearn/config.yaml")

			return nil
		},
	}
}
