package cli

import (
	"github.com/spf13/cobra"

	"github.com/khanglvm/flowlearn/internal/version"
)

// NewRootCmd creates the flowlearn command tree.
func NewRootCmd() *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "flowlearn",
		Short: "Learn tool workflows from agent execution traces",
		Long: `flowlearn learns which tools an AI agent uses for which requests.

It records execution traces, groups similar tool sequences into workflow
patterns, suggests confident patterns back before the agent plans, ranks
tools from usage history and verifies that learning actually improves
execution time and tool choice.`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Config file (default: ~/.flowlearn/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "Database file (overrides storage.path)")

	rootCmd.AddCommand(NewServeCmd(opts))
	rootCmd.AddCommand(NewSimulateCmd(opts))
	rootCmd.AddCommand(NewReportCmd(opts))
	rootCmd.AddCommand(NewLearningCmd(opts))
	rootCmd.AddCommand(NewConfigCmd(opts))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}
