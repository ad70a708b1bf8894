package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/accurate"
	"github.com/matzehuels/linkage/pkg/pipeline"
)

// solveFlags holds the solver flags shared by solve, drive and jog.
type solveFlags struct {
	accurate   bool
	backend    string
	iterations int
	maxEvals   int
}

func (f *solveFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.accurate, "accurate", false, "solve with the accurate least-squares solver")
	cmd.Flags().StringVar(&f.backend, "backend", "", fmt.Sprintf("accurate backend %v", accurate.DefaultRegistry().Names()))
	cmd.Flags().IntVar(&f.iterations, "iterations", 0, "projection iterations")
	cmd.Flags().IntVar(&f.maxEvals, "max-evals", 0, "accurate solver evaluation budget")
}

// options merges the flags over the [solver] configuration.
func (f *solveFlags) options(c *CLI, cmd *cobra.Command) pipeline.SolveOptions {
	cfg := c.Config.Solver
	opts := pipeline.SolveOptions{
		Accurate:       cfg.Accurate,
		Backend:        cfg.Backend,
		Iterations:     cfg.Iterations,
		MaxEvaluations: cfg.MaxEvaluations,
	}
	if cmd.Flags().Changed("accurate") {
		opts.Accurate = f.accurate
	}
	if f.backend != "" {
		opts.Backend = f.backend
	}
	if f.iterations > 0 {
		opts.Iterations = f.iterations
	}
	if f.maxEvals > 0 {
		opts.MaxEvaluations = f.maxEvals
	}
	return opts
}

// solveCommand creates the solve command.
func (c *CLI) solveCommand() *cobra.Command {
	var (
		flags   solveFlags
		output  string
		noCache bool
		refresh bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "solve FILE",
		Short: "Solve a project and report residuals",
		Long: `Solve loads a project, moves its points onto the constraints and reports
the remaining residuals and the degree-of-freedom analysis.

The projection solver runs by default. With --accurate the least-squares
solver runs instead and falls back to projection when the backend fails.`,
		Example: `  linkage solve fourbar.json
  linkage solve fourbar.json --accurate --backend lbfgs -o solved.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}

			runner, err := c.newRunner(ctx, noCache, false)
			if err != nil {
				return err
			}
			defer runner.Close()

			opts := flags.options(c, cmd)
			opts.Refresh = refresh
			res, err := runner.Solve(ctx, m, opts)
			if err != nil {
				return err
			}

			if asJSON {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				printSolveResult(res)
			}
			return saveModel(output, m)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the solved project to this file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute even when cached")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}

func printSolveResult(res *pipeline.SolveResult) {
	if res.Breakdown.Max() <= solvedTolerance {
		printSuccess("Solved with %s", StyleHighlight.Render(res.Solver))
	} else {
		printWarning("Solved with %s, residuals remain", res.Solver)
	}
	if res.Fallback != "" {
		printDetail("accurate solver: %s", res.Fallback)
	}
	printKeyValue("max error", fmtErr(res.MaxError))
	printKeyValue("over", fmt.Sprintf("%d constraints", res.Over))
	if res.Accurate != nil {
		printKeyValue("evaluations", fmt.Sprint(res.Accurate.Evaluations))
	}
	for _, comp := range res.DOF.Components {
		printDetail("%s", comp.Detail())
	}
	printStats(res.CacheHit, res.Duration.Round(time.Millisecond).String())
}
