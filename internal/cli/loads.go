package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/pipeline"
	"github.com/matzehuels/linkage/pkg/statics"
)

// loadsCommand creates the loads command.
func (c *CLI) loadsCommand() *cobra.Command {
	var (
		solve   bool
		noCache bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "loads FILE",
		Short: "Compute quasi-static joint loads",
		Long: `Loads computes the reaction force at every joint of the current pose from
the project's external loads, together with the torque the input driver or
output closure has to hold.`,
		Example: `  linkage loads fourbar.json
  linkage loads fourbar.json --solve --json`,
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

			if solve {
				if _, err := runner.Solve(ctx, m, (&solveFlags{}).options(c, cmd)); err != nil {
					return err
				}
			}
			res, err := runner.Loads(ctx, m, pipeline.LoadsOptions{})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(res)
			}
			printLoadsReport(res.Report)
			printStats(res.CacheHit, fmt.Sprintf("rank %d", res.Report.Rank), res.Duration.Round(time.Millisecond).String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&solve, "solve", false, "solve the pose before computing loads")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	return cmd
}

func printLoadsReport(r statics.Report) {
	printInfo("Closure %s", StyleHighlight.Render(string(r.Summary.Mode)))
	printKeyValue("tau input", fmtOptional(r.Summary.TauInput, 4))
	printKeyValue("tau output", fmtOptional(r.Summary.TauOutput, 4))
	printKeyValue("residual", fmtErr(r.Residual))

	if len(r.JointLoads) == 0 {
		printDetail("no joint loads")
		return
	}
	t := newTable("Point", "Fx", "Fy", "|F|")
	for _, jl := range r.JointLoads {
		t.Row(fmt.Sprintf("P%d", jl.PID), fmtFloat(jl.FX, 4), fmtFloat(jl.FY, 4), fmtFloat(jl.Mag, 4))
	}
	fmt.Println(t.Render())
}
