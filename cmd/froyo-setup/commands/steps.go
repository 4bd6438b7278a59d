package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the steps of the merged stepmap",
		Long: `List every step of the built-in stepmap merged with the --stepmap override,
with the action it invokes and the configuration block it reads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Close()

			ws, err := openWorkspace(cmd.Context(), logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			names := ws.steps.Steps()

			if jsonOutput {
				entries := make(map[string]interface{}, len(names))
				for _, name := range names {
					entries[name], _ = ws.steps.Resolve(name)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			width := 0
			for _, name := range names {
				width = max(width, len(name))
			}
			for _, name := range names {
				entry, err := ws.steps.Resolve(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-*s  %-12s config=%s\n", width, name, entry.Action, entry.Config)
			}
			return nil
		},
	}
}

func newFormattersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formatters",
		Short: "List the formatter paths",
		Long: `List the dotted path of every built-in formatter merged with the
--formatters override. Paths are used in values as %[path:arg,...].`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Close()

			ws, err := openWorkspace(cmd.Context(), logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			names := ws.formatters.Names()
			if jsonOutput {
				return json.NewEncoder(out).Encode(names)
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}
