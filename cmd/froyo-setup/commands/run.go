package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-setup/pkg/engine"
	"github.com/openfroyo/froyo-setup/pkg/policy"
	"github.com/openfroyo/froyo-setup/pkg/telemetry"
)

// shutdownTimeout bounds flushing telemetry once a run finished.
const shutdownTimeout = 10 * time.Second

func newRunCommand() *cobra.Command {
	var (
		sel           selectionFlags
		execute       bool
		policyPaths   []string
		metricsFile   string
		metricsAddr   string
		traceExporter string
		otlpEndpoint  string
		eventsFile    string
	)

	cmd := &cobra.Command{
		Use:   "run <setup-file>",
		Short: "Build the queue of a setup and execute it",
		Long: `Build the queue of a setup and execute it.

The setup file is looked up as given, then with each supported extension
appended, first in the working directory and then in the setups directory.

Without --execute the queue is printed as a prompt and only the exact answer
"y" proceeds; any other answer ends the run successfully without executing
anything. Calls run one at a time in queue order and the first failing call
stops the run.

Queues are checked against the built-in policies and the --policy files
before the prompt. A violation of severity error or critical denies the run.`,
		Example: `  # Run every group of setups/web.json after confirmation
  froyo-setup run web

  # Run two groups with explicit steps, without prompting
  froyo-setup run web -g db,app -s migrate -s install,start -x

  # Provide payload values
  froyo-setup run web -p host=web1 -p port=2222 --payload-file env.yaml

  # Export metrics, events and traces
  froyo-setup run web -x --metrics-file run.prom --events-file run.jsonl --trace stdout`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			params, err := sel.params()
			if err != nil {
				return err
			}
			params.Execute = execute

			cfg := telemetry.DefaultConfig()
			cfg.ServiceVersion = buildVersion
			cfg.Logging = loggingConfig(cmd.ErrOrStderr())
			cfg.Tracing.Exporter = traceExporter
			cfg.Tracing.Endpoint = otlpEndpoint
			cfg.Tracing.Writer = cmd.ErrOrStderr()
			cfg.Metrics.TextfilePath = metricsFile
			cfg.Metrics.ListenAddress = metricsAddr
			cfg.Events.Enabled = eventsFile != ""
			cfg.Events.Path = eventsFile

			t, err := telemetry.NewTelemetry(cfg)
			if err != nil {
				return engine.NewFatalError("invalid telemetry configuration", err).WithCode(engine.ErrCodeInput)
			}
			logger := t.Logger.NewComponentLogger("cli")
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := t.Shutdown(shutdownCtx); err != nil {
					logger.WithError(err).Warn("telemetry shutdown failed")
				}
			}()

			if metricsAddr != "" {
				if err := t.Metrics.StartMetricsServer(func(err error) {
					logger.WithError(err).Warn("metrics server failed")
				}); err != nil {
					return engine.NewFatalError("cannot start the metrics server", err).WithCode(engine.ErrCodeInput)
				}
			}

			ctx = t.WithContext(ctx)

			ws, err := openWorkspace(ctx, t.Logger)
			if err != nil {
				return err
			}

			setup, err := ws.loadSetup(ctx, args[0])
			if err != nil {
				return err
			}

			checker, err := policy.NewEngine(t.Logger.Zerolog())
			if err != nil {
				return engine.NewFatalError("cannot load the policies", err).WithCode(engine.ErrCodePolicyDenied)
			}
			if len(policyPaths) > 0 {
				if err := checker.LoadPolicies(ctx, policyPaths); err != nil {
					return engine.NewFatalError("cannot load the policies", err).WithCode(engine.ErrCodeInput)
				}
			}

			orch := ws.orchestrator(cmd.OutOrStdout(), cmd.ErrOrStderr(), engine.Options{
				Checker:  checker,
				Observer: telemetry.NewObserver(t),
				Input:    cmd.InOrStdin(),
				Output:   cmd.OutOrStdout(),
			})

			result, err := orch.Run(ctx, setup, params)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return nil
		},
	}

	addSelectionFlags(cmd, &sel)
	cmd.Flags().BoolVarP(&execute, "execute", "x", false, "execute without asking for confirmation")
	cmd.Flags().StringArrayVar(&policyPaths, "policy", nil, "additional policy file or directory (repeatable)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when the run finished")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&traceExporter, "trace", "none", "trace exporter (none, stdout, otlp)")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP gRPC endpoint for --trace otlp")
	cmd.Flags().StringVar(&eventsFile, "events-file", "", "append run events to this file as JSON lines")

	return cmd
}
