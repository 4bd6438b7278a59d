package actions

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/transports/ssh"
)

// DialFunc opens a remote transport for the ssh actions.
type DialFunc func(cfg *ssh.Config, logger zerolog.Logger) (ssh.Transport, error)

// Options configures the built-in actions.
type Options struct {
	// Stdout receives the output of print, exec.run and wasm.run.
	Stdout io.Writer

	// Stderr receives the error output of exec.run and wasm.run.
	Stderr io.Writer

	Logger zerolog.Logger

	// Dial opens ssh transports. Defaults to ssh.NewClient.
	Dial DialFunc

	// WasmMemoryLimitPages caps wasm.run memory in 64KiB pages (default 256).
	WasmMemoryLimitPages uint32
}

func (o Options) withDefaults() Options {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Dial == nil {
		o.Dial = func(cfg *ssh.Config, logger zerolog.Logger) (ssh.Transport, error) {
			return ssh.NewClient(cfg, logger)
		}
	}
	if o.WasmMemoryLimitPages == 0 {
		o.WasmMemoryLimitPages = 256
	}
	return o
}

// DefaultRegistry returns a registry holding every built-in action.
func DefaultRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	logger := opts.Logger.With().Str("component", "actions").Logger()

	r := NewRegistry()
	r.Register("noop", ActionFunc(func(ctx context.Context, cfg config.Value) error {
		logger.Debug().Msg("noop")
		return nil
	}))
	r.Register("print", printAction(opts.Stdout))
	r.Register("delay", ActionFunc(delay))
	r.Register("exec.run", &execAction{stdout: opts.Stdout, stderr: opts.Stderr, logger: logger})
	r.Register("file.write", &fileWriteAction{logger: logger})
	r.Register("ssh.exec", &sshExecAction{dial: opts.Dial, stdout: opts.Stdout, logger: logger})
	r.Register("ssh.upload", &sshUploadAction{dial: opts.Dial, logger: logger})
	r.Register("wasm.run", &wasmAction{
		stdout:           opts.Stdout,
		stderr:           opts.Stderr,
		memoryLimitPages: opts.WasmMemoryLimitPages,
		logger:           logger,
	})
	return r
}

// printAction writes its configuration to w: strings verbatim, anything
// else as YAML.
func printAction(w io.Writer) Action {
	return ActionFunc(func(ctx context.Context, cfg config.Value) error {
		if cfg.Kind() == config.KindString {
			_, err := fmt.Fprintln(w, cfg.AsString())
			return err
		}

		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to print config: %w", err)
		}
		return enc.Close()
	})
}

type delayParams struct {
	Duration string `json:"duration" validate:"required"`
}

// delay waits for the configured duration, e.g. {"duration": "2s"}.
func delay(ctx context.Context, cfg config.Value) error {
	var params delayParams
	if err := decodeParams(cfg, &params); err != nil {
		return err
	}

	d, err := time.ParseDuration(params.Duration)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
