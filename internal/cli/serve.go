package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/internal/api"
)

// serveCommand creates the HTTP API command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the solvers over HTTP",
		Long: `Serve starts the JSON HTTP API with the configured cache and run store:

  GET  /healthz
  POST /v1/solve    (query: accurate, backend, iterations)
  POST /v1/check
  POST /v1/loads
  POST /v1/sweep    ({"model": ..., "options": ..., "save": true})`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = c.Config.Server.Addr
			}

			runner, err := c.newRunner(ctx, noCache, true)
			if err != nil {
				return err
			}
			defer runner.Close()

			err = api.New(runner, c.Logger).ListenAndServe(ctx, addr)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}
