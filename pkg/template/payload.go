package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/froyo-setup/pkg/config"
)

// Payload maps variable names to substitution values. It is read-only
// while a run resolves configuration.
type Payload map[string]config.Value

// ParsePayload parses name=value pairs. Values are kept as strings; the
// substitution stage decodes literals after splicing them in.
func ParsePayload(pairs []string) (Payload, error) {
	payload := make(Payload, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid payload entry %q, expected name=value", pair)
		}
		payload[name] = config.String(value)
	}
	return payload, nil
}

// LoadPayloadFile reads a JSON or YAML mapping of payload values.
func LoadPayloadFile(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload file: %w", err)
	}

	var v config.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		v, err = config.DecodeYAML(data)
	default:
		v, err = config.DecodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse payload file %s: %w", path, err)
	}

	m := v.Mapping()
	if m == nil {
		return nil, fmt.Errorf("payload file %s must contain a mapping, got %s", path, v.Kind())
	}

	payload := make(Payload, m.Len())
	for _, key := range m.Keys() {
		payload[key], _ = m.Get(key)
	}
	return payload, nil
}

// Merge returns a payload holding the entries of p overridden by other.
func (p Payload) Merge(other Payload) Payload {
	out := make(Payload, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
