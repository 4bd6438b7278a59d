package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/openfroyo/froyo-setup/pkg/config"
)

type wasmParams struct {
	// Module is the path of a WASI command module.
	Module string `json:"module" validate:"required"`

	Args []string `json:"args"`

	Env map[string]string `json:"env"`
}

// wasmAction runs a WASI module. The module receives the whole step
// configuration as JSON on stdin; a non-zero exit code fails the call.
type wasmAction struct {
	stdout           io.Writer
	stderr           io.Writer
	memoryLimitPages uint32
	logger           zerolog.Logger
}

func (a *wasmAction) Invoke(ctx context.Context, cfg config.Value) *Task {
	return Go(ctx, func(ctx context.Context) error {
		var params wasmParams
		if err := decodeParams(cfg, &params); err != nil {
			return err
		}

		input, err := cfg.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode module input: %w", err)
		}
		return a.run(ctx, &params, input)
	})
}

func (a *wasmAction) run(ctx context.Context, params *wasmParams, input []byte) error {
	wasmModule, err := os.ReadFile(params.Module)
	if err != nil {
		return fmt.Errorf("failed to read WASM module: %w", err)
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(a.memoryLimitPages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)
	defer runtime.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	compiled, err := runtime.CompileModule(ctx, wasmModule)
	if err != nil {
		return fmt.Errorf("failed to compile WASM module: %w", err)
	}

	var stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithArgs(append([]string{params.Module}, params.Args...)...).
		WithStdin(bytes.NewReader(input)).
		WithStdout(a.stdout).
		WithStderr(io.MultiWriter(a.stderr, &stderr))

	keys := make([]string, 0, len(params.Env))
	for k := range params.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		moduleConfig = moduleConfig.WithEnv(k, params.Env[k])
	}

	a.logger.Debug().Str("module", params.Module).Strs("args", params.Args).Msg("running WASM module")

	mod, err := runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == 0 {
				return nil
			}
			return fmt.Errorf("module '%s' exited with code %d: %s", params.Module, exitErr.ExitCode(), stderr.String())
		}
		return fmt.Errorf("failed to run WASM module: %w", err)
	}
	return mod.Close(ctx)
}
