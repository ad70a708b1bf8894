package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/expr"
	"github.com/matzehuels/linkage/pkg/model"
)

// paramsCommand creates the params command.
func (c *CLI) paramsCommand() *cobra.Command {
	var (
		sets   []string
		output string
	)

	cmd := &cobra.Command{
		Use:   "params FILE",
		Short: "List parameters and evaluate expression fields",
		Long: `Params lists the project's parameter table, applies --set overrides and
re-evaluates every expression-bound field. Fields whose expression fails
keep their previous value and are reported.

Expressions are infix ("L0 * 2 + sin(a)") or s-expressions ("(* L0 2)").`,
		Example: `  linkage params fourbar.json
  linkage params fourbar.json --set L0=12.5 --set a=30 -o fourbar-long.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			for _, s := range sets {
				name, value, err := parseAssignment(s)
				if err != nil {
					return err
				}
				if err := m.Parameters.Set(name, value); err != nil {
					return err
				}
			}

			failed := m.Recompute(expr.New())
			printParams(m)
			if failed > 0 {
				printWarning("%d expression fields kept their previous value", failed)
			}
			return saveModel(output, m)
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "set a parameter (name=value), repeatable")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the updated project to this file")

	return cmd
}

func parseAssignment(s string) (string, float64, error) {
	name, raw, ok := strings.Cut(s, "=")
	if !ok {
		return "", 0, fmt.Errorf("invalid --set %q: want name=value", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --set %q: %w", s, err)
	}
	return strings.TrimSpace(name), v, nil
}

func printParams(m *model.Model) {
	params := m.Parameters.List()
	if len(params) == 0 {
		printInfo("No parameters")
	} else {
		t := newTable("Parameter", "Value")
		for _, p := range params {
			t.Row(p.Name, strconv.FormatFloat(p.Value, 'g', -1, 64))
		}
		fmt.Println(t.Render())
	}

	if len(m.ExprErrors) == 0 {
		return
	}
	keys := make([]string, 0, len(m.ExprErrors))
	for k := range m.ExprErrors {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		printError("%s: %s", k, m.ExprErrors[k])
	}
}
