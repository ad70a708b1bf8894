package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/optimize"
	"github.com/matzehuels/linkage/pkg/runstore"
	"github.com/matzehuels/linkage/pkg/sweep"
)

// runsCommand creates the saved-run management command.
func (c *CLI) runsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage saved sweep and optimization runs",
	}

	cmd.AddCommand(c.runsListCommand())
	cmd.AddCommand(c.runsShowCommand())
	cmd.AddCommand(c.runsDeleteCommand())

	return cmd
}

func (c *CLI) runsListCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(runs)
			}
			if len(runs) == 0 {
				printInfo("No saved runs")
				printNextStep("Save one with", "linkage sweep FILE --save")
				return nil
			}
			t := newTable("ID", "Kind", "Name", "Created", "Frames", "Result")
			for _, r := range runs {
				result := StyleSuccess.Render("ok")
				if !r.Success {
					result = StyleWarning.Render("stopped")
				}
				t.Row(r.ID, r.Kind, r.Name, r.CreatedAt.Local().Format(time.DateTime), fmt.Sprint(r.Frames), result)
			}
			fmt.Println(t.Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")
	return cmd
}

func (c *CLI) runsShowCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(run)
			}

			printKeyValue("id", run.ID)
			printKeyValue("kind", run.KindOrDefault())
			if run.Name != "" {
				printKeyValue("name", run.Name)
			}
			printKeyValue("created", run.CreatedAt.Local().Format(time.DateTime))
			printKeyValue("model", run.ModelHash[:min(12, len(run.ModelHash))])
			if run.KindOrDefault() == runstore.KindOptimize {
				return printOptimizeRun(run)
			}

			var opts sweep.Options
			if err := json.Unmarshal(run.Options, &opts); err != nil {
				return fmt.Errorf("decode run options: %w", err)
			}
			printKeyValue("range", fmt.Sprintf("%g → %g", opts.Start, opts.End))
			printKeyValue("solver", string(opts.Solver))
			printKeyValue("frames", fmt.Sprint(run.Frames))
			if run.Success {
				printSuccess("Completed")
			} else {
				var res sweep.Result
				if err := json.Unmarshal(run.Result, &res); err == nil {
					printWarning("Stopped: %s", res.Status.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run as JSON")
	return cmd
}

func (c *CLI) runsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete saved runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, id := range args {
				if err := store.Delete(ctx, id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				printSuccess("Deleted %s", id)
			}
			return nil
		},
	}
}

// printOptimizeRun prints the problem size and best design of a saved
// optimization.
func printOptimizeRun(run *runstore.Run) error {
	var p optimize.Problem
	if err := json.Unmarshal(run.Options, &p); err != nil {
		return fmt.Errorf("decode run problem: %w", err)
	}
	var res optimize.Result
	if err := json.Unmarshal(run.Result, &res); err != nil {
		return fmt.Errorf("decode run result: %w", err)
	}
	printKeyValue("problem", fmt.Sprintf("%d variables, %d objectives, %d constraints, %d cases",
		len(p.Variables), len(p.Objectives), len(p.Constraints), len(p.Cases)))
	printOptimizeResult(&res, "")
	return nil
}
