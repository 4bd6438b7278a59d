package commands

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/engine"
	"github.com/openfroyo/froyo-setup/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		sel      selectionFlags
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <setup-file>",
		Short: "Re-plan a setup whenever its files change",
		Long: `Print the queue of a setup, then print it again whenever the setup-file,
the stepmap override or the formatter override changes. Nothing is executed.

Errors are reported and watching continues. Stop with Ctrl-C.`,
		Example: `  # Watch a setup while editing it
  froyo-setup watch web -p host=web1`,
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
			source, err := ws.loader.Find(args[0])
			if err != nil {
				return engine.NewFatalError("cannot find the setup-file", err).WithCode(engine.ErrCodeSetupNotFound)
			}

			files := append([]string{source}, ws.overrides()...)
			watcher, err := config.NewWatcher(files, debounce, logger.Zerolog())
			if err != nil {
				return err
			}

			var mu sync.Mutex
			replan := func(path string) {
				mu.Lock()
				defer mu.Unlock()

				if path != "" {
					fmt.Fprintf(out, "\n%s changed\n", path)
				}
				if err := planOnce(ctx, out, logger, source, params); err != nil {
					logger.WithError(err).Error("plan failed")
				}
			}

			replan("")
			logger.Infof("watching %d file(s)", watcher.Files())
			return watcher.Run(ctx, replan)
		},
	}

	addSelectionFlags(cmd, &sel)
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "delay before re-planning after a change")

	return cmd
}

// planOnce reloads the registries and the setup and prints its queue.
func planOnce(ctx context.Context, out io.Writer, logger *telemetry.Logger, source string, params engine.RunParams) error {
	ws, err := openWorkspace(ctx, logger)
	if err != nil {
		return err
	}
	setup, err := ws.loadSetup(ctx, source)
	if err != nil {
		return err
	}
	queue, err := ws.orchestrator(out, out, engine.Options{}).BuildQueue(ctx, setup, params)
	if err != nil {
		return err
	}
	return writeQueue(out, setup, queue)
}
