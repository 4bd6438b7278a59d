package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-setup/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var sel selectionFlags

	cmd := &cobra.Command{
		Use:   "plan <setup-file>",
		Short: "Print the queue a run would execute",
		Long: `Build the queue of a setup and print it without executing anything.

Every call is listed with its position, group and step, action and fully
resolved configuration. Formatters are invoked while resolving, so formatters
with side effects run here as well.`,
		Example: `  # Show the queue for every group
  froyo-setup plan web

  # Show the queue for one group as JSON
  froyo-setup plan web -g db -p host=db1 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			params, err := sel.params()
			if err != nil {
				return err
			}

			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Close()

			ws, err := openWorkspace(ctx, logger)
			if err != nil {
				return err
			}

			setup, err := ws.loadSetup(ctx, args[0])
			if err != nil {
				return err
			}

			orch := ws.orchestrator(cmd.OutOrStdout(), cmd.ErrOrStderr(), engine.Options{})
			queue, err := orch.BuildQueue(ctx, setup, params)
			if err != nil {
				return err
			}

			return writeQueue(cmd.OutOrStdout(), setup, queue)
		},
	}

	addSelectionFlags(cmd, &sel)

	return cmd
}
