package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/simulate"
	"github.com/khanglvm/flowlearn/internal/verification"
)

type simulateOptions struct {
	scenario    string
	users       []string
	seed        int64
	executions  int
	epsilon     float64
	jitter      float64
	concurrency int
	persist     bool
	report      bool
	list        bool
	output      string
}

type simulateOutput struct {
	Results []simulate.Result     `json:"results"`
	Reports []verification.Report `json:"reports,omitempty"`
}

// NewSimulateCmd creates the 'simulate' command.
func NewSimulateCmd(opts *GlobalOptions) *cobra.Command {
	so := simulateOptions{}
	def := simulate.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted learning scenario against the engine",
		Long: `Run a learning scenario with a simulated agent and print the results as JSON.

Scenarios:
  1.1 (flow)   Repeats one request; the workflow is learned and suggested back
  1.2 (basic)  Differently worded urgent messages; the agent learns which tool fits

By default the run is in memory. Use --persist to learn into the configured store.`,
		Example: `  # Flow scenario for one user
  flowlearn simulate --scenario flow

  # Tool selection for three users with the validation reports
  flowlearn simulate --scenario 1.2 --users alice,bob,carol --executions 12 --report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if so.list {
				return printScenarios(cmd)
			}
			sopts := def
			sopts.Seed = so.seed
			sopts.Executions = so.executions
			sopts.Epsilon = so.epsilon
			sopts.Jitter = so.jitter
			sopts.Concurrency = so.concurrency
			return runSimulate(cmd, opts, so, sopts)
		},
	}

	cmd.Flags().StringVarP(&so.scenario, "scenario", "s", "1.1", "Scenario: 1.1, 1.2, flow or basic")
	cmd.Flags().StringSliceVarP(&so.users, "users", "u", []string{"demo_user"}, "Simulated users (comma-separated)")
	cmd.Flags().Int64Var(&so.seed, "seed", def.Seed, "Random seed")
	cmd.Flags().IntVarP(&so.executions, "executions", "n", 0, "Executions per user (default: the scenario's)")
	cmd.Flags().Float64Var(&so.epsilon, "epsilon", def.Epsilon, "Exploration rate of tool choice")
	cmd.Flags().Float64Var(&so.jitter, "jitter", def.Jitter, "Relative latency noise")
	cmd.Flags().IntVar(&so.concurrency, "concurrency", 0, "Parallel users (default: all)")
	cmd.Flags().BoolVar(&so.persist, "persist", false, "Learn into the configured store")
	cmd.Flags().BoolVar(&so.report, "report", false, "Include each user's validation report")
	cmd.Flags().BoolVar(&so.list, "list", false, "List the built-in scenarios")
	cmd.Flags().StringVarP(&so.output, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *GlobalOptions, so simulateOptions, sopts simulate.Options) error {
	sc, err := simulate.Lookup(so.scenario)
	if err != nil {
		return err
	}
	if len(so.users) == 0 {
		return fmt.Errorf("at least one user is required")
	}

	ctx := cmd.Context()
	rt, err := openEngine(ctx, opts, so.persist, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	sopts.Logger = rt.logger
	rt.logger.Info("running scenario",
		zap.String("scenario", sc.ID),
		zap.Strings("users", so.users),
		zap.Int64("seed", sopts.Seed))

	results, err := simulate.New(rt.engine, sopts).RunUsers(ctx, sc, so.users)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	out := simulateOutput{Results: results}
	if so.report {
		for _, user := range so.users {
			r, err := rt.engine.GenerateComprehensiveReport(ctx, user)
			if err != nil {
				return err
			}
			out.Reports = append(out.Reports, r)
		}
	}
	return writeJSON(cmd.OutOrStdout(), so.output, out)
}

func printScenarios(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Built-in scenarios:")
	for _, sc := range simulate.Scenarios() {
		fmt.Fprintf(w, "  • %s %-6s %s (%d executions)\n", sc.ID, sc.Mode, sc.Name, sc.Executions)
		if len(sc.Workflow) > 0 {
			fmt.Fprintf(w, "      workflow: %s\n", strings.Join(sc.Workflow, " → "))
		}
		if len(sc.Candidates) > 0 {
			fmt.Fprintf(w, "      candidates: %s\n", strings.Join(sc.Candidates, ", "))
		}
	}
	return nil
}
