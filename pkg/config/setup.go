package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Errors reported while locating and reading setup content.
var (
	ErrSetupNotFound       = errors.New("setup-file does not exist")
	ErrSetupsDirNotFound   = errors.New("setups-dir does not exist")
	ErrUnsupportedFormat   = errors.New("setup-file extension not supported")
	ErrInvalidSetupContent = errors.New("invalid setup content")
)

// Format identifies how a setup source is decoded.
type Format string

// Supported setup formats, named after their file extensions.
const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatJS       Format = "js"
	FormatStarlark Format = "star"
	FormatCUE      Format = "cue"
	FormatHCL      Format = "hcl"
)

// setupExtensions are appended, in order, to a setup path that does not exist as given.
var setupExtensions = []string{".json", ".js", ".yaml", ".yml", ".star", ".cue", ".hcl"}

// FormatForPath returns the format selected by the extension of path.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "js":
		return FormatJS, nil
	case "star":
		return FormatStarlark, nil
	case "cue":
		return FormatCUE, nil
	case "hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnsupportedFormat, ext)
	}
}

// Setup is decoded setup content: a mapping from group name to group block.
type Setup struct {
	// Source is the absolute path the content was read from.
	Source string

	// Format is the decoder that produced the content.
	Format Format

	// Content is the decoded mapping.
	Content Value
}

// NewSetup wraps an already decoded mapping.
func NewSetup(source string, content *Mapping) *Setup {
	return &Setup{Source: source, Format: FormatJSON, Content: MappingValue(content)}
}

// Groups returns the group names in their source order.
func (s *Setup) Groups() []string {
	return s.Content.Mapping().Keys()
}

// Group returns the block of the named group.
func (s *Setup) Group(name string) (*Mapping, bool) {
	v, ok := s.Content.Field(name)
	if !ok || v.Kind() != KindMapping {
		return nil, false
	}
	return v.Mapping(), true
}

// SetupLoader locates and decodes setup sources.
type SetupLoader struct {
	setupsDir string
	schemas   *SchemaRegistry
	starlark  *StarlarkEvaluator
	cue       *CUEParser
	logger    zerolog.Logger
}

// NewSetupLoader creates a loader resolving relative setup names against setupsDir.
func NewSetupLoader(setupsDir string, logger zerolog.Logger) *SetupLoader {
	return &SetupLoader{
		setupsDir: setupsDir,
		schemas:   NewSchemaRegistry(),
		starlark:  NewStarlarkEvaluator(10 * time.Second),
		cue:       NewCUEParser(),
		logger:    logger.With().Str("component", "setup-loader").Logger(),
	}
}

// Find resolves path to an existing setup file. The path is tried as given
// and with each known extension appended, first relative to the working
// directory and then relative to the setups directory.
func (l *SetupLoader) Find(path string) (string, error) {
	if found := findWithExtensions(path); found != "" {
		return filepath.Abs(found)
	}

	if l.setupsDir == "" || !isDir(l.setupsDir) {
		return "", fmt.Errorf("%w: '%s'", ErrSetupsDirNotFound, l.setupsDir)
	}

	if found := findWithExtensions(filepath.Join(l.setupsDir, path)); found != "" {
		return filepath.Abs(found)
	}
	return "", fmt.Errorf("%w: '%s'", ErrSetupNotFound, path)
}

func findWithExtensions(path string) string {
	if isFile(path) {
		return path
	}
	for _, ext := range setupExtensions {
		if isFile(path + ext) {
			return path + ext
		}
	}
	return ""
}

// Load finds, decodes and validates a setup source.
func (l *SetupLoader) Load(ctx context.Context, path string) (*Setup, error) {
	source, err := l.Find(path)
	if err != nil {
		return nil, err
	}
	l.logger.Debug().Str("path", source).Msg("use setup-file")

	format, err := FormatForPath(source)
	if err != nil {
		return nil, err
	}
	l.logger.Debug().Str("format", string(format)).Msg("setup-file format")

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read setup-file: %w", err)
	}

	content, err := l.Parse(ctx, format, source, data)
	if err != nil {
		return nil, err
	}
	l.logger.Debug().Int("groups", content.Mapping().Len()).Msg("read setup content")

	return &Setup{Source: source, Format: format, Content: content}, nil
}

// Parse decodes data in the given format and validates its shape.
func (l *SetupLoader) Parse(ctx context.Context, format Format, filename string, data []byte) (Value, error) {
	var (
		content Value
		err     error
	)

	switch format {
	case FormatJSON:
		content, err = DecodeJSON(data)
	case FormatYAML:
		content, err = DecodeYAML(data)
	case FormatJS:
		var mod *JSModule
		if mod, err = EvaluateJS(filename, data); err == nil {
			content, err = FromJS(mod.Runtime, mod.Exports)
		}
	case FormatStarlark:
		content, err = l.starlark.EvaluateSetup(ctx, filename, data)
	case FormatCUE:
		content, err = l.cue.Parse(ctx, filename, data)
	case FormatHCL:
		content, err = DecodeHCL(filename, data)
	default:
		return Null(), fmt.Errorf("%w: '%s'", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return Null(), fmt.Errorf("%w: %s: %v", ErrInvalidSetupContent, filename, err)
	}

	if content.Kind() != KindMapping {
		return Null(), fmt.Errorf("%w: %s: top level must be a mapping, got %s", ErrInvalidSetupContent, filename, content.Kind())
	}
	if err := l.schemas.ValidateSetup(ctx, content); err != nil {
		return Null(), fmt.Errorf("%w: %s: %v", ErrInvalidSetupContent, filename, err)
	}
	return content, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FindOverride returns the absolute path of an override source given as
// path, looked up directly and then relative to setupsDir. It returns ""
// when neither exists.
func FindOverride(path, setupsDir string) string {
	if path == "" {
		return ""
	}
	candidate := ""
	switch {
	case isFile(path):
		candidate = path
	case setupsDir != "" && isFile(filepath.Join(setupsDir, path)):
		candidate = filepath.Join(setupsDir, path)
	default:
		return ""
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return candidate
	}
	return abs
}
