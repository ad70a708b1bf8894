package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/kinematics"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/solver"
)

// driveCommand creates the drive command.
func (c *CLI) driveCommand() *cobra.Command {
	var (
		flags    solveFlags
		absolute bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "drive FILE VALUE [VALUE...]",
		Short: "Drive the mechanism to a value and solve",
		Long: `Drive marks the project's current pose as zero and moves the drivers by the
given values: degrees for angle drivers, lengths for translation drivers.
Several values drive the active drivers in order. Without an enabled driver
the primary output is driven instead.

With --absolute the single value is an absolute heading or offset.`,
		Example: `  linkage drive fourbar.json 45 -o fourbar-45.json
  linkage drive twin.json 90 30 --accurate`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			values, err := parseValues(args[1:])
			if err != nil {
				return err
			}
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			if len(m.ActiveDrivers()) == 0 && len(m.ActiveOutputs()) == 0 {
				return fmt.Errorf("%s has no enabled driver or output", args[0])
			}

			runner, err := c.newRunner(ctx, true, false)
			if err != nil {
				return err
			}
			defer runner.Close()
			solve := runner.SolveFunc(flags.options(c, cmd))

			tr := kinematics.New(m)
			tr.MarkStart()
			switch {
			case absolute:
				err = tr.AbsoluteDriveTo(ctx, values[0], solve)
			case len(values) > 1:
				err = tr.DriveToRelativeMulti(ctx, values, solve)
			default:
				err = tr.DriveToRelative(ctx, values[0], solve)
			}
			if err != nil {
				return err
			}

			printPose(tr, m)
			return saveModel(output, m)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&absolute, "absolute", false, "treat VALUE as an absolute heading or offset")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the driven project to this file")

	return cmd
}

func parseValues(args []string) ([]float64, error) {
	values := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid drive value %q", a)
		}
		values[i] = v
	}
	return values, nil
}

func printPose(tr *kinematics.Tracker, m *model.Model) {
	maxErr, _ := solver.MaxError(m)
	if maxErr <= solvedTolerance {
		printSuccess("Driven")
	} else {
		printWarning("Driven, residuals remain")
	}
	for i, v := range tr.DriverValues() {
		value := "—"
		if v.OK {
			value = fmtFloat(v.V, 3) + " " + string(v.Unit)
		}
		printKeyValue(fmt.Sprintf("driver %d", i), value)
	}
	if v, ok := tr.InputDeg(); ok {
		printKeyValue("input", fmtFloat(v, 3)+" deg")
	}
	if v, ok := tr.OutputDeg(); ok {
		printKeyValue("output", fmtFloat(v, 3)+" deg")
	}
	for _, sig := range tr.MeasureValues(nil) {
		printKeyValue(sig.Name, fmtOptional(sig.Value, 3)+" "+string(sig.Unit))
	}
	printKeyValue("max error", fmtErr(maxErr))
}

// solvedTolerance is the residual under which a pose is reported as solved.
const solvedTolerance = 1e-3
