package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-setup/pkg/telemetry"
)

var (
	// Global flags
	setupsDir      string
	stepMapPath    string
	formattersPath string
	logLevel       string
	logFormat      string
	jsonOutput     bool

	// buildVersion is the version reported in telemetry.
	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "froyo-setup",
		Short: "froyo-setup - run groups of setup steps",
		Long: `froyo-setup turns a setup file describing groups of steps into an ordered
queue of action calls and runs them one at a time, stopping at the first failure.

Each step is mapped to an action and a configuration block of its group. String
values in the block are resolved against the payload (${name|default}) and the
formatters (%[ns.fn:arg,...]) before the action receives them.

Setup files may be JSON, YAML, JavaScript, Starlark, CUE or HCL.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Flags().Changed("log-level") {
				zerolog.SetGlobalLevel(telemetry.ParseLevel(logLevel))
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&setupsDir, "setups-dir", "./setups", "directory holding setup files and overrides")
	rootCmd.PersistentFlags().StringVar(&stepMapPath, "stepmap", "stepmap.json", "step map override, looked up directly and in the setups directory")
	rootCmd.PersistentFlags().StringVar(&formattersPath, "formatters", "formatters.star", "formatter module override (.star or .js)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); defaults to $LOG_LEVEL or info")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newStepsCommand())
	rootCmd.AddCommand(newFormattersCommand())

	return rootCmd
}

// resolvedLogLevel returns the --log-level flag, $LOG_LEVEL or "info".
func resolvedLogLevel() string {
	if logLevel != "" {
		return logLevel
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		return env
	}
	return "info"
}
