package actions

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/config"
)

type fileWriteParams struct {
	Path string `json:"path" validate:"required"`

	Content string `json:"content"`

	// Mode is an octal permission string such as "0644".
	Mode string `json:"mode"`

	// Create allows creating a missing file (default true).
	Create *bool `json:"create"`

	// Backup copies an existing file to <path>.bak before writing.
	Backup bool `json:"backup"`
}

// fileWriteAction writes content to a local file.
type fileWriteAction struct {
	logger zerolog.Logger
}

func (a *fileWriteAction) Invoke(ctx context.Context, cfg config.Value) *Task {
	return Go(ctx, func(ctx context.Context) error {
		var params fileWriteParams
		if err := decodeParams(cfg, &params); err != nil {
			return err
		}
		return a.write(&params)
	})
}

func (a *fileWriteAction) write(params *fileWriteParams) error {
	var mode os.FileMode = 0o644
	if params.Mode != "" {
		parsed, err := parseMode(params.Mode)
		if err != nil {
			return err
		}
		mode = parsed
	}

	_, err := os.Stat(params.Path)
	fileExists := err == nil

	if !fileExists && params.Create != nil && !*params.Create {
		return fmt.Errorf("file does not exist and create=false: %s", params.Path)
	}

	if params.Backup && fileExists {
		if err := copyFile(params.Path, params.Path+".bak"); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(params.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	content := []byte(params.Content)
	if err := os.WriteFile(params.Path, content, mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	// WriteFile only applies mode on creation.
	if params.Mode != "" {
		if err := os.Chmod(params.Path, mode); err != nil {
			return fmt.Errorf("failed to set mode: %w", err)
		}
	}

	a.logger.Debug().
		Str("path", params.Path).
		Int("bytes", len(content)).
		Bool("created", !fileExists).
		Str("checksum", fmt.Sprintf("%x", sha256.Sum256(content))).
		Msg("file written")
	return nil
}

func parseMode(s string) (os.FileMode, error) {
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid mode %q", ErrInvalidConfig, s)
	}
	return os.FileMode(mode), nil
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	sourceInfo, err := sourceFile.Stat()
	if err != nil {
		return err
	}

	destFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, sourceInfo.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		return err
	}
	return destFile.Close()
}
