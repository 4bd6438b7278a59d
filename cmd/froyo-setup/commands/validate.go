package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-setup/pkg/engine"
	"github.com/openfroyo/froyo-setup/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var (
		sel         selectionFlags
		policyPaths []string
	)

	cmd := &cobra.Command{
		Use:   "validate <setup-file>",
		Short: "Check a setup without running it",
		Long: `Check a setup without running it.

This command checks:
  - the setup-file is found and decodes to valid setup content
  - the stepmap and formatter overrides load
  - every selected step maps to an action and a configuration block
  - every configuration block resolves
  - the queue passes the built-in and --policy policies`,
		Example: `  # Validate a setup
  froyo-setup validate web

  # Validate a selection against extra policies
  froyo-setup validate web -g db --policy ./policies`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

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
			fmt.Fprintf(out, "✓ stepmap: %d steps (%s)\n", len(ws.steps.Steps()), sourceName(ws.steps.Source()))
			fmt.Fprintf(out, "✓ formatters: %d formatters (%s)\n", len(ws.formatters.Names()), sourceName(ws.formatters.Source()))

			setup, err := ws.loadSetup(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ setup-file: %s (%s, %d groups)\n", setup.Source, setup.Format, len(setup.Groups()))

			orch := ws.orchestrator(out, cmd.ErrOrStderr(), engine.Options{})
			queue, err := orch.BuildQueue(ctx, setup, params)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ queue: %d calls\n", len(queue))

			checker, err := policy.NewEngine(logger.Zerolog())
			if err != nil {
				return engine.NewFatalError("cannot load the policies", err).WithCode(engine.ErrCodeInput)
			}
			if len(policyPaths) > 0 {
				if err := checker.LoadPolicies(ctx, policyPaths); err != nil {
					return engine.NewFatalError("cannot load the policies", err).WithCode(engine.ErrCodeInput)
				}
			}

			result, err := checker.EvaluateQueue(ctx, queue)
			if err != nil {
				return engine.NewFatalError("policy evaluation failed", err).WithCode(engine.ErrCodePolicyDenied)
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(out, "! %s\n", w)
			}
			for _, v := range result.Violations {
				fmt.Fprintf(out, "✗ %s\n", v)
			}
			if !result.Allowed {
				return engine.NewFatalError("queue denied by policy", &policy.DeniedError{Violations: result.Violations}).
					WithCode(engine.ErrCodePolicyDenied)
			}
			fmt.Fprintf(out, "✓ policies: %d evaluated, %d warnings\n", len(result.EvaluatedPolicies), len(result.Warnings))

			return nil
		},
	}

	addSelectionFlags(cmd, &sel)
	cmd.Flags().StringArrayVar(&policyPaths, "policy", nil, "additional policy file or directory (repeatable)")

	return cmd
}

// sourceName describes where a registry was loaded from.
func sourceName(source string) string {
	if source == "" {
		return "built-in"
	}
	return source
}
