package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/flowlearn/internal/verification"
)

type reportOptions struct {
	user      string
	scenario  string
	dashboard bool
	insights  bool
	tool      string
	days      int
	system    bool
	output    string
}

// NewReportCmd creates the 'report' command for reading persisted results.
func NewReportCmd(opts *GlobalOptions) *cobra.Command {
	ro := reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print validation and analytics reports as JSON",
		Long: `Print reports computed from the learned state in the configured store.

  --user U                  Comprehensive validation report for U
  --user U --scenario S     Per-phase analysis of scenario S for U
  --user U --insights       Tool usage insights for U
  --dashboard               Cross-user verification dashboard
  --tool T [--days N]       Performance of tool T over the last N days
  --system                  Tool usage across all users`,
		Example: `  flowlearn report --user alice
  flowlearn report --user alice --scenario flow
  flowlearn report --tool send_slack --days 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, ro)
		},
	}

	cmd.Flags().StringVarP(&ro.user, "user", "u", "", "User id")
	cmd.Flags().StringVarP(&ro.scenario, "scenario", "s", "", "Scenario for the phase analysis: 1.1, 1.2, flow or basic")
	cmd.Flags().BoolVar(&ro.dashboard, "dashboard", false, "Cross-user dashboard")
	cmd.Flags().BoolVar(&ro.insights, "insights", false, "Tool usage insights for --user")
	cmd.Flags().StringVar(&ro.tool, "tool", "", "Tool to analyse")
	cmd.Flags().IntVar(&ro.days, "days", 7, "Days of history for --tool")
	cmd.Flags().BoolVar(&ro.system, "system", false, "Tool usage across all users")
	cmd.Flags().StringVarP(&ro.output, "output", "o", "", "Output file (default: stdout)")
	cmd.MarkFlagsMutuallyExclusive("dashboard", "tool", "system", "insights")
	cmd.MarkFlagsMutuallyExclusive("scenario", "insights")

	return cmd
}

func runReport(cmd *cobra.Command, opts *GlobalOptions, ro reportOptions) error {
	if ro.user == "" && !ro.dashboard && ro.tool == "" && !ro.system {
		return fmt.Errorf("one of --user, --dashboard, --tool or --system is required")
	}

	ctx := cmd.Context()
	rt, err := openEngine(ctx, opts, true, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	e := rt.engine

	var out any
	switch {
	case ro.dashboard:
		out = e.Dashboard(ctx)
	case ro.system:
		out, err = e.SystemAnalytics(ctx)
	case ro.tool != "":
		out, err = e.ToolPerformance(ctx, ro.tool, ro.days)
	case ro.insights:
		out, err = e.UserToolInsights(ctx, ro.user)
	case ro.scenario != "":
		sc, perr := verification.ParseScenario(ro.scenario)
		if perr != nil {
			return perr
		}
		out, err = e.PhaseAnalysis(ctx, ro.user, sc)
	default:
		out, err = e.GenerateComprehensiveReport(ctx, ro.user)
	}
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), ro.output, out)
}
