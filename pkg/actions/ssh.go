package actions

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/transports/ssh"
)

// sshParams holds the connection settings shared by the ssh actions.
type sshParams struct {
	Host string `json:"host" validate:"required"`
	Port int    `json:"port" validate:"omitempty,min=1,max=65535"`
	User string `json:"user" validate:"required"`

	Password   string `json:"password"`
	PrivateKey string `json:"private_key"`
	Passphrase string `json:"passphrase"`

	KnownHosts string `json:"known_hosts"`

	// StrictHostKeyChecking defaults to true.
	StrictHostKeyChecking *bool `json:"strict_host_key_checking"`

	// Timeout bounds connection setup, e.g. "10s".
	Timeout string `json:"timeout"`
}

func (p *sshParams) transportConfig() (*ssh.Config, error) {
	cfg := ssh.DefaultConfig(p.Host, p.User)
	if p.Port > 0 {
		cfg.Port = p.Port
	}

	// A password without a key selects password authentication.
	if p.Password != "" && p.PrivateKey == "" {
		cfg.AuthMethod = ssh.AuthMethodPassword
		cfg.Password = p.Password
	} else {
		cfg.PrivateKeyPath = p.PrivateKey
		cfg.PrivateKeyPassphrase = p.Passphrase
	}

	if p.KnownHosts != "" {
		cfg.KnownHostsPath = p.KnownHosts
	}
	if p.StrictHostKeyChecking != nil {
		cfg.StrictHostKeyChecking = *p.StrictHostKeyChecking
	}

	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout: %v", ErrInvalidConfig, err)
		}
		cfg.ConnectionTimeout = d
	}

	return cfg, nil
}

func openTransport(ctx context.Context, dial DialFunc, params *sshParams, logger zerolog.Logger) (ssh.Transport, error) {
	cfg, err := params.transportConfig()
	if err != nil {
		return nil, err
	}

	transport, err := dial(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := transport.Connect(ctx); err != nil {
		return nil, err
	}
	return transport, nil
}

type sshExecParams struct {
	sshParams

	Command string `json:"command" validate:"required"`

	Sudo bool `json:"sudo"`

	SudoPassword string `json:"sudo_password"`
}

// sshExecAction runs a command on a remote host.
type sshExecAction struct {
	dial   DialFunc
	stdout io.Writer
	logger zerolog.Logger
}

func (a *sshExecAction) Invoke(ctx context.Context, cfg config.Value) *Task {
	return Go(ctx, func(ctx context.Context) error {
		var params sshExecParams
		if err := decodeParams(cfg, &params); err != nil {
			return err
		}

		transport, err := openTransport(ctx, a.dial, &params.sshParams, a.logger)
		if err != nil {
			return err
		}
		defer transport.Close()

		var stdout string
		if params.Sudo {
			stdout, _, err = transport.RunWithSudo(ctx, params.Command, params.SudoPassword)
		} else {
			stdout, _, err = transport.Run(ctx, params.Command)
		}
		if stdout != "" {
			fmt.Fprintln(a.stdout, stdout)
		}
		return err
	})
}

type sshUploadParams struct {
	sshParams

	Source string `json:"source" validate:"required"`

	Destination string `json:"destination" validate:"required"`

	Mode string `json:"mode"`
}

// sshUploadAction copies a local file to a remote host over SFTP.
type sshUploadAction struct {
	dial   DialFunc
	logger zerolog.Logger
}

func (a *sshUploadAction) Invoke(ctx context.Context, cfg config.Value) *Task {
	return Go(ctx, func(ctx context.Context) error {
		var params sshUploadParams
		if err := decodeParams(cfg, &params); err != nil {
			return err
		}

		var mode uint32
		if params.Mode != "" {
			parsed, err := parseMode(params.Mode)
			if err != nil {
				return err
			}
			mode = uint32(parsed)
		}

		transport, err := openTransport(ctx, a.dial, &params.sshParams, a.logger)
		if err != nil {
			return err
		}
		defer transport.Close()

		_, err = transport.Upload(ctx, params.Source, params.Destination, mode)
		return err
	})
}
