package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-setup/pkg/actions"
	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/engine"
	"github.com/openfroyo/froyo-setup/pkg/formatters"
	"github.com/openfroyo/froyo-setup/pkg/mapping"
	"github.com/openfroyo/froyo-setup/pkg/telemetry"
	"github.com/openfroyo/froyo-setup/pkg/template"
)

// formatterTimeout bounds the evaluation of a Starlark formatter module.
const formatterTimeout = 10 * time.Second

// workspace holds the registries shared by the commands that build queues.
type workspace struct {
	logger     *telemetry.Logger
	loader     *config.SetupLoader
	steps      *mapping.Registry
	formatters *formatters.Registry
	resolver   *template.Engine
}

// loggingConfig returns the logging configuration selected by the global flags.
func loggingConfig(w io.Writer) telemetry.LoggingConfig {
	cfg := telemetry.DefaultConfig().Logging
	cfg.Level = resolvedLogLevel()
	cfg.Format = logFormat
	cfg.Writer = w
	return cfg
}

// newLogger creates the command logger writing to w.
func newLogger(w io.Writer) (*telemetry.Logger, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging = loggingConfig(w)
	if err := cfg.Validate(); err != nil {
		return nil, engine.NewFatalError("invalid logging configuration", err).WithCode(engine.ErrCodeInput)
	}
	return telemetry.NewLogger(cfg.Logging)
}

// openWorkspace loads the step map and formatters, applying the overrides
// named by the global flags.
func openWorkspace(ctx context.Context, logger *telemetry.Logger) (*workspace, error) {
	zlog := logger.Zerolog()

	steps, err := mapping.Load(mapping.LoadOptions{
		Path:      stepMapPath,
		SetupsDir: setupsDir,
		Logger:    zlog,
	})
	if err != nil {
		return nil, engine.NewFatalError("cannot load the stepmap", err).WithCode(engine.ErrCodeSetupInvalid)
	}

	fmts := formatters.Load(ctx, formatters.LoadOptions{
		Path:      formattersPath,
		SetupsDir: setupsDir,
		Timeout:   formatterTimeout,
		Logger:    zlog,
	})

	return &workspace{
		logger:     logger,
		loader:     config.NewSetupLoader(setupsDir, zlog),
		steps:      steps,
		formatters: fmts,
		resolver:   template.New(fmts, zlog),
	}, nil
}

// loadSetup finds and decodes a setup file.
func (ws *workspace) loadSetup(ctx context.Context, path string) (*config.Setup, error) {
	setup, err := ws.loader.Load(ctx, path)
	if err == nil {
		return setup, nil
	}

	if errors.Is(err, config.ErrSetupNotFound) || errors.Is(err, config.ErrSetupsDirNotFound) {
		return nil, engine.NewFatalError("cannot find the setup-file", err).WithCode(engine.ErrCodeSetupNotFound)
	}
	return nil, engine.NewFatalError("cannot read the setup-file", err).WithCode(engine.ErrCodeSetupInvalid)
}

// overrides returns the override files in use, for watching.
func (ws *workspace) overrides() []string {
	var files []string
	for _, path := range []string{
		config.FindOverride(stepMapPath, setupsDir),
		config.FindOverride(formattersPath, setupsDir),
	} {
		if path != "" {
			files = append(files, path)
		}
	}
	return files
}

// orchestrator creates an orchestrator over the workspace registries and
// the built-in actions. Action output goes to stdout and stderr.
func (ws *workspace) orchestrator(stdout, stderr io.Writer, opts engine.Options) *engine.Orchestrator {
	opts.Steps = ws.steps
	opts.Resolver = ws.resolver
	opts.Logger = ws.logger.Zerolog()
	if opts.Actions == nil {
		opts.Actions = actions.DefaultRegistry(actions.Options{
			Stdout: stdout,
			Stderr: stderr,
			Logger: opts.Logger,
		})
	}
	return engine.New(opts)
}

// selectionFlags are the run parameters shared by run, plan, validate and watch.
type selectionFlags struct {
	groups      []string
	steps       []string
	payload     []string
	payloadFile string
}

// params converts the flags into run parameters. Each --steps value is
// the comma-separated step list of the group at the same position; an
// empty value keeps the group's own steps.
func (f *selectionFlags) params() (engine.RunParams, error) {
	params := engine.RunParams{Groups: f.groups}

	if len(f.steps) > 0 {
		params.Steps = make([][]string, len(f.steps))
		for i, list := range f.steps {
			params.Steps[i] = splitList(list)
		}
	}

	payload := template.Payload{}
	if f.payloadFile != "" {
		fromFile, err := template.LoadPayloadFile(f.payloadFile)
		if err != nil {
			return params, engine.NewFatalError("invalid payload", err).WithCode(engine.ErrCodeInput)
		}
		payload = fromFile
	}
	fromFlags, err := template.ParsePayload(f.payload)
	if err != nil {
		return params, engine.NewFatalError("invalid payload", err).WithCode(engine.ErrCodeInput)
	}
	params.Payload = payload.Merge(fromFlags)

	return params, nil
}

func splitList(list string) []string {
	items := []string{}
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// addSelectionFlags registers the selection flags on a command.
func addSelectionFlags(cmd *cobra.Command, f *selectionFlags) {
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.groups, "group", "g", nil, "groups to process, in order (repeatable or comma-separated)")
	flags.StringArrayVarP(&f.steps, "steps", "s", nil, "comma-separated steps for the group at the same position (repeatable)")
	flags.StringArrayVarP(&f.payload, "payload", "p", nil, "payload value as name=value (repeatable)")
	flags.StringVar(&f.payloadFile, "payload-file", "", "JSON or YAML file of payload values")
}

// writeQueue prints a queue as a table, or as JSON with --json.
func writeQueue(w io.Writer, setup *config.Setup, queue engine.Queue) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"setup": setup.Source,
			"calls": queue,
		})
	}

	fmt.Fprintf(w, "Queue for %s (%d calls):\n", setup.Source, len(queue))
	width := 0
	for _, call := range queue {
		width = max(width, len(call.Name()))
	}
	for _, call := range queue {
		cfg, err := json.Marshal(call.Config)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %3d  %-*s  %-12s %s\n", call.Index, width, call.Name(), call.Action, cfg)
	}
	return nil
}
