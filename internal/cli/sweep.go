package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/pipeline"
	"github.com/matzehuels/linkage/pkg/sweep"
)

// sweepFlags mirrors sweep.Options on the command line.
type sweepFlags struct {
	start, end, step float64
	count            int
	solver           string
	backend          string
	maxEvals         int
	iterations       int
	tol              float64
	splineSoft       bool
}

func (f *sweepFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&f.start, "start", 0, "first drive value")
	fs.Float64Var(&f.end, "end", 0, "last drive value")
	fs.Float64Var(&f.step, "step", 0, "increment of step mode")
	fs.IntVar(&f.count, "count", 0, "number of evenly spaced steps (count mode)")
	fs.StringVar(&f.solver, "solver", "", "projection, accurate or accurate-fallback")
	fs.StringVar(&f.backend, "backend", "", "accurate backend")
	fs.IntVar(&f.maxEvals, "max-evals", 0, "accurate solver evaluation budget per step")
	fs.IntVar(&f.iterations, "iterations", 0, "projection iterations per step")
	fs.Float64Var(&f.tol, "tol", 0, "hard error tolerance of a successful step")
	fs.BoolVar(&f.splineSoft, "spline-soft", false, "leave point-on-spline errors out of the hard error")
}

// options merges the changed flags over the [sweep] configuration.
func (f *sweepFlags) options(c *CLI, cmd *cobra.Command) sweep.Options {
	opts := c.Config.Sweep
	changed := cmd.Flags().Changed
	if changed("start") {
		opts.Start = f.start
	}
	if changed("end") {
		opts.End = f.end
	}
	if changed("step") {
		opts.Step = f.step
	}
	if changed("count") {
		opts.StepCount = f.count
	}
	if changed("solver") {
		opts.Solver = sweep.Solver(f.solver)
	}
	if changed("backend") {
		opts.Backend = f.backend
	}
	if changed("max-evals") {
		opts.MaxEvaluations = f.maxEvals
	}
	if changed("iterations") {
		opts.Iterations = f.iterations
	}
	if changed("tol") {
		opts.HardErrTol = f.tol
	}
	if changed("spline-soft") {
		opts.SplineSoft = f.splineSoft
	}
	opts.Logger = c.Logger
	return opts
}

// sweepCommand creates the sweep command.
func (c *CLI) sweepCommand() *cobra.Command {
	var (
		flags   sweepFlags
		plot    string
		signals string
		output  string
		result  string
		save    bool
		name    string
		noCache bool
		refresh bool
		frames  bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "sweep FILE",
		Short: "Step the primary driver through a range",
		Long: `Sweep solves the project, marks the solved pose as zero and steps the
primary driver (or the primary output) from --start to --end. Every step is
solved and checked against the hard error tolerance; the first infeasible
step is rolled back and ends the sweep.

Results are cached by model and options. --save persists the run in the
configured run store, where "linkage runs" can list it later.`,
		Example: `  linkage sweep fourbar.json --end 360 --step 5
  linkage sweep fourbar.json --count 72 --plot sweep.png --signals input_deg,output_deg
  linkage sweep slider.json --solver projection --save --name "slider check"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}

			runner, err := c.newRunner(ctx, noCache, save)
			if err != nil {
				return err
			}
			defer runner.Close()

			opts := pipeline.SweepOptions{
				Sweep:   flags.options(c, cmd),
				Refresh: refresh,
				Save:    save,
				Name:    name,
			}

			prog := newProgress(c.Logger)
			spinner := newSpinnerWithContext(ctx, "Sweeping "+args[0]+"...")
			spinner.Start()
			res, err := runner.Sweep(ctx, m, opts)
			spinner.Stop()
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Swept %d frames", res.Summary.NSteps))

			if asJSON {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				printSweepResult(res, frames)
			}

			if plot != "" {
				if err := writePlot(plot, res.Result, signals); err != nil {
					return err
				}
			}
			if result != "" {
				if err := writeJSONFile(result, res); err != nil {
					return err
				}
			}
			return saveModel(output, m)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&plot, "plot", "", "write a PNG plot of the sweep")
	cmd.Flags().StringVar(&signals, "signals", "", "comma-separated signals to plot (default input_deg,output_deg)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the project at the last successful pose")
	cmd.Flags().StringVar(&result, "result", "", "write the sweep result as JSON")
	cmd.Flags().BoolVar(&save, "save", false, "save the run in the run store")
	cmd.Flags().StringVar(&name, "name", "", "name of a saved run")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute even when cached")
	cmd.Flags().BoolVar(&frames, "frames", false, "print a table of all frames")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}

func printSweepResult(res *pipeline.SweepResult, frames bool) {
	s, st := res.Summary, res.Status
	if st.Success {
		printSuccess("Sweep completed")
	} else {
		printWarning("Sweep stopped: %s", st.Reason)
	}
	if st.SolverError != "" {
		printDetail("solver error: %s", st.SolverError)
	}
	printKeyValue("frames", fmt.Sprint(s.NSteps))
	printKeyValue("success", fmt.Sprintf("%.0f%%", 100*s.SuccessRate))
	printKeyValue("max error", fmtErr(s.MaxHardErr))
	if res.RunID != "" {
		printKeyValue("run", res.RunID)
	}

	if frames && len(res.Frames) > 0 {
		names := sweep.Signals(res.Result)[3:]
		headers := append([]string{"#", "Value", "Solver", "Input", "Output", "Error"}, names...)
		t := newTable(headers...)
		for _, f := range res.Frames {
			row := []string{
				fmt.Sprint(f.Index),
				fmtFloat(f.Value, 2),
				f.Solver,
				fmtOptional(f.InputDeg, 2),
				fmtOptional(f.OutputDeg, 2),
				fmtErr(f.HardErr),
			}
			for _, n := range names {
				v, ok := f.Measures[n]
				if !ok {
					v = f.LoadMeasures[n]
				}
				row = append(row, fmtOptional(v, 3))
			}
			if !f.Success {
				for i := range row {
					row[i] = StyleWarning.Render(row[i])
				}
			}
			t.Row(row...)
		}
		fmt.Println(t.Render())
	}
	printStats(res.CacheHit, res.Duration.Round(time.Millisecond).String())
}

func writePlot(path string, res *sweep.Result, signals string) error {
	var names []string
	if signals != "" {
		names = strings.Split(signals, ",")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := sweep.WritePlot(f, res, names); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	printFile(path)
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	printFile(path)
	return nil
}
