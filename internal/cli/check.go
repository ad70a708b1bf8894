package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/dof"
)

// checkCommand creates the check command.
func (c *CLI) checkCommand() *cobra.Command {
	var (
		graph  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Count degrees of freedom and detect over-constraint",
		Long: `Check splits the constraint graph into connected components and compares
each component's constraint count with its degrees of freedom. Redundant
bars inside rigid sub-structures are reported as well.

With --graph the constraint graph is written as Graphviz DOT (.dot) or
rendered to SVG (.svg), with over-constrained components in red.`,
		Example: `  linkage check fourbar.json
  linkage check fourbar.json --graph fourbar.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}

			report := dof.Analyze(m)
			if asJSON {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printDOFReport(report)
			}

			if graph == "" {
				return nil
			}
			data := []byte(dof.ToDOT(m, report))
			switch strings.ToLower(filepath.Ext(graph)) {
			case ".dot", ".gv":
			case ".svg":
				if data, err = dof.RenderSVG(cmd.Context(), string(data)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported graph format %q: want .dot or .svg", filepath.Ext(graph))
			}
			if err := os.WriteFile(graph, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", graph, err)
			}
			printFile(graph)
			return nil
		},
	}

	cmd.Flags().StringVar(&graph, "graph", "", "write the constraint graph (.dot or .svg)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	return cmd
}

func printDOFReport(r dof.Report) {
	if len(r.Components) == 0 {
		printInfo("No points")
		return
	}
	if r.Over() {
		printWarning("Over-constrained")
	} else {
		printSuccess("Not over-constrained")
	}

	t := newTable("#", "Points", "DOF", "Constraints", "Redundant", "State")
	for _, comp := range r.Components {
		state := StyleSuccess.Render("ok")
		if comp.Over() {
			state = StyleWarning.Render("over")
		}
		t.Row(
			fmt.Sprint(comp.Index),
			fmt.Sprint(len(comp.Points)),
			fmt.Sprint(comp.DOF),
			fmt.Sprint(comp.Total()),
			fmt.Sprint(comp.Redundant),
			state,
		)
	}
	fmt.Println(t.Render())
}
