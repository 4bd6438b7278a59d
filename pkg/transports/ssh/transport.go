// Package ssh provides the SSH and SFTP transport used by the remote
// actions.
package ssh

import (
	"context"
	"time"
)

// Transport defines the remote operations the ssh actions rely on.
type Transport interface {
	// Connect establishes an SSH connection to the remote host.
	Connect(ctx context.Context) error

	// Run executes a command on the remote host and returns its output.
	// A non-zero exit status is returned as a *TransportError with ExitCode set.
	Run(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// RunWithSudo runs a command through sudo. The password may be empty
	// when NOPASSWD is configured.
	RunWithSudo(ctx context.Context, cmd string, sudoPassword string) (stdout string, stderr string, err error)

	// Upload copies a local file to the remote host via SFTP, creating
	// parent directories. A zero mode keeps the server default.
	Upload(ctx context.Context, localPath string, remotePath string, mode uint32) (*FileTransferResult, error)

	// Close closes the connection.
	Close() error
}

// FileTransferResult represents the result of a file transfer operation.
type FileTransferResult struct {
	// BytesTransferred is the number of bytes transferred
	BytesTransferred int64

	// Duration is the time taken for the transfer
	Duration time.Duration
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Err is the underlying error
	Err error

	// ExitCode is the remote exit status for failed commands, -1 otherwise
	ExitCode int

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
