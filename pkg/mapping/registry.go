// Package mapping resolves step names to the action they run and the
// configuration block the action reads.
package mapping

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/config"
)

//go:embed stepmap.json
var defaultStepMap []byte

var (
	// ErrUnknownStep is returned when a step is not present in the merged mapping.
	ErrUnknownStep = errors.New("unknown step")

	// ErrInvalidStepMap is returned when a step map does not describe valid entries.
	ErrInvalidStepMap = errors.New("invalid stepmap")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Entry is the resolution of one step.
type Entry struct {
	// Action is the identifier of the action implementation.
	Action string `json:"action" validate:"required"`

	// Config names the configuration block, within the step's group, passed to the action.
	Config string `json:"config" validate:"required"`
}

// Registry is an immutable step map.
type Registry struct {
	entries map[string]Entry
	source  string
}

// LoadOptions controls where the override step map is looked up.
type LoadOptions struct {
	// Path of the override, tried directly and then relative to SetupsDir.
	Path string

	// SetupsDir is the setups directory.
	SetupsDir string

	Logger zerolog.Logger
}

// Default returns the built-in step map.
func Default() (*Registry, error) {
	base, err := config.DecodeJSON(defaultStepMap)
	if err != nil {
		return nil, fmt.Errorf("failed to parse default stepmap: %w", err)
	}
	return build(base, "")
}

// Load returns the built-in step map deep-merged with the override found
// through opts. A missing override is not an error. An override that
// cannot be parsed, or that produces invalid entries once merged, is
// ignored with a warning.
func Load(opts LoadOptions) (*Registry, error) {
	logger := opts.Logger.With().Str("component", "mapping").Logger()

	registry, err := Default()
	if err != nil {
		return nil, err
	}

	path := config.FindOverride(opts.Path, opts.SetupsDir)
	if path == "" {
		logger.Debug().Str("path", opts.Path).Msg("no additional stepmap found")
		return registry, nil
	}

	merged, err := mergeOverride(path)
	if err != nil {
		logger.Warn().Err(err).Msgf("cannot parse the stepmap at '%s'", path)
		return registry, nil
	}
	logger.Debug().Str("path", path).Int("steps", len(merged.entries)).Msg("extended stepmap")
	return merged, nil
}

func mergeOverride(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override config.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		override, err = config.DecodeYAML(data)
	default:
		override, err = config.DecodeJSON(data)
	}
	if err != nil {
		return nil, err
	}
	if override.Kind() != config.KindMapping {
		return nil, fmt.Errorf("%w: top level must be a mapping, got %s", ErrInvalidStepMap, override.Kind())
	}

	base, err := config.DecodeJSON(defaultStepMap)
	if err != nil {
		return nil, err
	}
	return build(config.Merge(base, override), path)
}

func build(stepMap config.Value, source string) (*Registry, error) {
	m := stepMap.Mapping()
	if m == nil {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrInvalidStepMap)
	}

	r := &Registry{
		entries: make(map[string]Entry, m.Len()),
		source:  source,
	}
	for _, step := range m.Keys() {
		raw, _ := m.Get(step)
		if raw.Kind() != config.KindMapping {
			return nil, fmt.Errorf("%w: step %q must be a mapping, got %s", ErrInvalidStepMap, step, raw.Kind())
		}

		var entry Entry
		if err := raw.Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: step %q: %v", ErrInvalidStepMap, step, err)
		}
		if err := validate.Struct(entry); err != nil {
			return nil, fmt.Errorf("%w: step %q: %v", ErrInvalidStepMap, step, err)
		}
		r.entries[step] = entry
	}
	return r, nil
}

// Resolve returns the entry for step.
func (r *Registry) Resolve(step string) (Entry, error) {
	entry, ok := r.entries[step]
	if !ok {
		return Entry{}, fmt.Errorf("%w: '%s'", ErrUnknownStep, step)
	}
	return entry, nil
}

// Steps returns the known step names, sorted.
func (r *Registry) Steps() []string {
	steps := make([]string, 0, len(r.entries))
	for step := range r.entries {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	return steps
}

// Source returns the path of the merged override, or "" when only the
// built-in step map is in use.
func (r *Registry) Source() string {
	return r.source
}
