package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/model"
)

// convertCommand creates the convert command.
func (c *CLI) convertCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Rewrite a project in the current schema",
		Long: `Convert reads a project, splitting a legacy "constraints" array into the
typed constraint lists, and writes it back in the current schema. Without
-o the result is printed to stdout.`,
		Example: `  linkage convert old.json -o new.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				return model.WriteJSON(os.Stdout, m)
			}
			if err := saveModel(output, m); err != nil {
				return err
			}
			printSuccess("Converted %s", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	return cmd
}
