package cli

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/optimize"
	"github.com/matzehuels/linkage/pkg/runstore"
)

// optimizeCommand creates the design optimization command.
func (c *CLI) optimizeCommand() *cobra.Command {
	var (
		evals    int
		seed     uint64
		trace    string
		output   string
		caseRuns []string
		save     bool
		name     string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "optimize FILE PROBLEM",
		Short: "Search design variables for the best mechanism",
		Long: `Optimize samples the design variables of PROBLEM (a .toml or .json file)
uniformly within their bounds, sweeps every case on a copy of the project
and scores the candidate by its first objective plus a penalty for violated
constraints. The lowest score wins.

Objectives and constraints are signal expressions such as
"max(output_deg) - min(output_deg)"; histories of every sweep signal, the
per-step success history and the design quantities (P1.x, Link0.L,
PointLine0.s, Param.name) are in scope.

--case-run adds the options of a saved sweep as an extra case. Without
--seed the search is seeded from the clock; the seed is always reported.`,
		Example: `  linkage optimize fourbar.json problem.toml --evals 200 --seed 7
  linkage optimize fourbar.json problem.toml --trace evals.jsonl -o best.json
  linkage optimize slider.json problem.toml --case-run 3f2a... --save`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			p, err := optimize.LoadProblem(args[1])
			if err != nil {
				return err
			}

			var store runstore.Store
			if len(caseRuns) > 0 || save {
				if store, err = c.newStore(ctx); err != nil {
					return err
				}
				defer store.Close()
			}
			for _, id := range caseRuns {
				run, err := store.Load(ctx, id)
				if err != nil {
					return fmt.Errorf("load case run %s: %w", id, err)
				}
				cs, err := optimize.CaseFromRun(run)
				if err != nil {
					return err
				}
				p.Cases = append(p.Cases, cs)
			}
			if err := p.Validate(); err != nil {
				return err
			}

			if !cmd.Flags().Changed("seed") {
				seed = uint64(time.Now().UnixNano())
			}
			opts := optimize.Options{
				Evaluations: evals,
				Seed:        seed,
				Logger:      c.Logger,
			}
			if trace != "" {
				f, err := os.Create(trace)
				if err != nil {
					return fmt.Errorf("create trace: %w", err)
				}
				defer f.Close()
				opts.Trace = f
			}

			prog := newProgress(c.Logger)
			spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Optimizing %s (%d cases)...", args[0], len(p.Cases)))
			spinner.Start()
			res, err := optimize.Run(ctx, m, *p, opts)
			spinner.Stop()
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Evaluated %d designs", res.Evaluations))

			var runID string
			if save {
				if runID, err = optimize.Save(ctx, store, name, m, p, res); err != nil {
					return fmt.Errorf("save run: %w", err)
				}
			}

			if asJSON {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				printOptimizeResult(res, runID)
			}
			if trace != "" {
				printFile(trace)
			}

			if output == "" || res.Best == nil {
				return nil
			}
			best, warnings := optimize.Design(m, res.Best.Vars)
			for _, w := range warnings {
				printWarning("%s", w)
			}
			return saveModel(output, best)
		},
	}

	cmd.Flags().IntVar(&evals, "evals", optimize.DefaultEvaluations, "number of candidate designs")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "sampler seed (default from the clock)")
	cmd.Flags().StringVar(&trace, "trace", "", "write one JSON line per evaluation")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the project with the best design applied")
	cmd.Flags().StringArrayVar(&caseRuns, "case-run", nil, "add a saved sweep run as a case (repeatable)")
	cmd.Flags().BoolVar(&save, "save", false, "save the search in the run store")
	cmd.Flags().StringVar(&name, "name", "", "name of a saved run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}

func printOptimizeResult(res *optimize.Result, runID string) {
	best := res.Best
	if best == nil {
		printWarning("No design evaluated")
		return
	}
	switch {
	case !best.Feasible():
		printWarning("Best design violates constraints")
	case !best.Success():
		printWarning("Best design has incomplete sweeps")
	default:
		printSuccess("Found feasible design")
	}

	names := make([]string, 0, len(best.Vars))
	for n := range best.Vars {
		names = append(names, n)
	}
	slices.Sort(names)
	t := newTable("Variable", "Value")
	for _, n := range names {
		t.Row(n, fmtFloat(best.Vars[n], 6))
	}
	fmt.Println(t.Render())

	printKeyValue("evaluation", fmt.Sprintf("%d of %d", best.Index, res.Evaluations))
	printKeyValue("objective", fmtFloat(best.Objective, 6))
	printKeyValue("score", fmtFloat(best.Score, 6))
	if best.Penalty > 0 {
		printKeyValue("penalty", fmtFloat(best.Penalty, 6))
	}
	printKeyValue("seed", fmt.Sprint(res.Seed))
	if runID != "" {
		printKeyValue("run", runID)
	}

	ids := make([]string, 0, len(best.Cases))
	for id := range best.Cases {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		cs := best.Cases[id]
		switch {
		case cs.Error != "":
			printDetail("%s: %s", id, cs.Error)
		case !cs.Status.Success:
			printDetail("%s: stopped after %d frames: %s", id, cs.Summary.NSteps, cs.Status.Reason)
		default:
			printDetail("%s: %d frames, max error %s", id, cs.Summary.NSteps, fmtErr(cs.Summary.MaxHardErr))
		}
	}
	for _, w := range best.Warnings {
		printWarning("%s", w)
	}
}
