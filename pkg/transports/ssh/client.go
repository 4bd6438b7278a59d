package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Client implements Transport over a single SSH connection.
type Client struct {
	config *Config
	logger zerolog.Logger

	mu     sync.Mutex
	client *ssh.Client
}

var _ Transport = (*Client)(nil)

// NewClient creates a client for config. It does not connect.
func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config: config,
		logger: logger.With().Str("component", "ssh").Str("host", config.Host).Logger(),
	}, nil
}

// Connect establishes the SSH connection. Calling Connect on a connected
// client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, ExitCode: -1, IsAuthError: true}
	}

	address := c.config.Address()
	c.logger.Debug().Str("address", address).Msg("establishing SSH connection")

	dialer := &net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return &TransportError{Op: "connect", Err: err, ExitCode: -1}
	}

	// The handshake honours ctx through the connection deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	ncc, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		_ = conn.Close()
		return &TransportError{Op: "connect", Err: err, ExitCode: -1, IsAuthError: isAuthError(err)}
	}
	_ = conn.SetDeadline(time.Time{})

	c.client = ssh.NewClient(ncc, chans, reqs)
	c.logger.Info().Str("address", address).Msg("SSH connection established")
	return nil
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	c.logger.Debug().Msg("closing SSH connection")
	err := c.client.Close()
	c.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return &TransportError{Op: "disconnect", Err: err, ExitCode: -1}
	}
	return nil
}

func (c *Client) sshClient() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, &TransportError{Op: "session", Err: fmt.Errorf("not connected"), ExitCode: -1}
	}
	return c.client, nil
}

// Run executes cmd on the remote host.
func (c *Client) Run(ctx context.Context, cmd string) (string, string, error) {
	return c.run(ctx, cmd, nil)
}

// RunWithSudo executes cmd through sudo, feeding the password on stdin.
func (c *Client) RunWithSudo(ctx context.Context, cmd string, sudoPassword string) (string, string, error) {
	if sudoPassword == "" {
		return c.run(ctx, "sudo "+cmd, nil)
	}
	return c.run(ctx, "sudo -S "+cmd, strings.NewReader(sudoPassword+"\n"))
}

func (c *Client) run(ctx context.Context, cmd string, stdin io.Reader) (string, string, error) {
	startTime := time.Now()

	client, err := c.sshClient()
	if err != nil {
		return "", "", err
	}

	session, err := client.NewSession()
	if err != nil {
		return "", "", &TransportError{Op: "exec", Err: fmt.Errorf("failed to create session: %w", err), ExitCode: -1}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf
	session.Stdin = stdin

	c.logger.Debug().Str("command", cmd).Msg("executing command")

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		execErr = ctx.Err()
	case execErr = <-doneChan:
	}

	stdout := strings.TrimSpace(stdoutBuf.String())
	stderr := strings.TrimSpace(stderrBuf.String())

	c.logger.Debug().
		Str("command", cmd).
		Int("stdout_len", len(stdout)).
		Int("stderr_len", len(stderr)).
		Dur("duration", time.Since(startTime)).
		Err(execErr).
		Msg("command completed")

	if execErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(execErr, &exitErr) {
			return stdout, stderr, &TransportError{
				Op:       "exec",
				Err:      fmt.Errorf("command exited with code %d: %s", exitErr.ExitStatus(), stderr),
				ExitCode: exitErr.ExitStatus(),
			}
		}
		return stdout, stderr, &TransportError{Op: "exec", Err: execErr, ExitCode: -1}
	}

	return stdout, stderr, nil
}

// Upload copies localPath to remotePath over SFTP.
func (c *Client) Upload(ctx context.Context, localPath string, remotePath string, mode uint32) (*FileTransferResult, error) {
	startTime := time.Now()

	localFile, err := os.Open(localPath)
	if err != nil {
		return nil, &TransportError{Op: "upload", Err: fmt.Errorf("failed to open local file: %w", err), ExitCode: -1}
	}
	defer localFile.Close()

	client, err := c.sshClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, &TransportError{Op: "upload", Err: fmt.Errorf("failed to create SFTP client: %w", err), ExitCode: -1}
	}
	defer sftpClient.Close()

	// Remote paths are always slash separated.
	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return nil, &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote directory: %w", err), ExitCode: -1}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return nil, &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote file: %w", err), ExitCode: -1}
	}
	defer remoteFile.Close()

	written, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return nil, &TransportError{Op: "upload", Err: fmt.Errorf("failed to copy file: %w", err), ExitCode: -1}
	}

	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			return nil, &TransportError{Op: "upload", Err: fmt.Errorf("failed to set file permissions: %w", err), ExitCode: -1}
		}
	}

	result := &FileTransferResult{BytesTransferred: written, Duration: time.Since(startTime)}

	c.logger.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", result.Duration).
		Msg("file uploaded")

	return result, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}
