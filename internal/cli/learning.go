package cli

import (
	"github.com/spf13/cobra"
)

// NewLearningCmd creates the learning command group.
func NewLearningCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Manage learned patterns and tool usage history",
		Long: `The learning system records every tracked run: workflow patterns, tool
usage, tool combinations and verification metrics.

All data is stored locally in ~/.flowlearn/flowlearn.db (storage.path).

Commands:
  status  Show learning statistics
  export  Export the learned state as JSON
  search  Find learned patterns by keyword
  clear   Delete all learning data
  disable Turn off persistence (temporary)
  enable  Turn on persistence`,
	}

	cmd.AddCommand(newLearningStatusCmd(opts))
	cmd.AddCommand(newLearningExportCmd(opts))
	cmd.AddCommand(newLearningSearchCmd(opts))
	cmd.AddCommand(newLearningClearCmd(opts))
	cmd.AddCommand(newLearningDisableCmd())
	cmd.AddCommand(newLearningEnableCmd())

	return cmd
}
