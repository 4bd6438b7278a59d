package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/config"
)

type execParams struct {
	// Command is a shell command line, or the program when Args is set.
	Command string `json:"command" validate:"required"`

	Args []string `json:"args"`

	// Shell runs Command when Args is empty (default /bin/sh).
	Shell string `json:"shell"`

	WorkDir string `json:"workdir"`

	// Env is added to the inherited environment.
	Env map[string]string `json:"env"`

	Sudo bool `json:"sudo"`

	SudoPassword string `json:"sudo_password"`
}

// execAction runs a local command. A non-zero exit status fails the call.
type execAction struct {
	stdout io.Writer
	stderr io.Writer
	logger zerolog.Logger
}

func (a *execAction) Invoke(ctx context.Context, cfg config.Value) *Task {
	return Go(ctx, func(ctx context.Context) error {
		var params execParams
		if err := decodeParams(cfg, &params); err != nil {
			return err
		}
		return a.run(ctx, &params)
	})
}

func (a *execAction) run(ctx context.Context, params *execParams) error {
	shell := params.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	var argv []string
	if len(params.Args) > 0 {
		argv = append([]string{params.Command}, params.Args...)
	} else {
		argv = []string{shell, "-c", params.Command}
	}

	var stdin io.Reader
	if params.Sudo {
		if params.SudoPassword != "" {
			argv = append([]string{"sudo", "-S"}, argv...)
			stdin = bytes.NewBufferString(params.SudoPassword + "\n")
		} else {
			argv = append([]string{"sudo"}, argv...)
		}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	cmd.Dir = params.WorkDir

	if len(params.Env) > 0 {
		keys := make([]string, 0, len(params.Env))
		for k := range params.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		env := os.Environ()
		for _, k := range keys {
			env = append(env, fmt.Sprintf("%s=%s", k, params.Env[k]))
		}
		cmd.Env = env
	}

	var stderr bytes.Buffer
	cmd.Stdout = a.stdout
	cmd.Stderr = io.MultiWriter(a.stderr, &stderr)

	a.logger.Debug().Strs("argv", argv).Str("workdir", params.WorkDir).Msg("running command")

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command '%s' exited with code %d: %s",
				params.Command, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("failed to execute command: %w", err)
	}

	a.logger.Debug().Str("command", params.Command).Dur("duration", duration).Msg("command completed")
	return nil
}
