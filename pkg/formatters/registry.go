// Package formatters holds the named functions that template tokens of
// the form %[ns.fn:arg1,arg2] apply to configuration strings.
package formatters

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrFormatterNotFound is returned when a segment of a formatter path does not exist.
	ErrFormatterNotFound = errors.New("formatter not found")

	// ErrNotCallable is returned when a formatter path ends on a namespace.
	ErrNotCallable = errors.New("formatter is not callable")
)

// Func is a formatter. It receives the token arguments as text and returns
// a value whose text form replaces the token. A nil result leaves the
// string unchanged.
type Func func(args ...string) (any, error)

// Namespace is a nested set of formatters. Values are either Func or Namespace.
type Namespace map[string]any

// Registry resolves dotted formatter paths. It is immutable once built.
type Registry struct {
	root   Namespace
	source string
}

// NewRegistry creates a registry from a namespace tree.
func NewRegistry(root Namespace) *Registry {
	return &Registry{root: root}
}

// Resolve returns the formatter at path, e.g. "str.upper".
func (r *Registry) Resolve(path string) (Func, error) {
	var node any = r.root
	for _, part := range strings.Split(path, ".") {
		ns, ok := node.(Namespace)
		if !ok {
			return nil, fmt.Errorf("%w: '%s'", ErrFormatterNotFound, path)
		}
		next, ok := ns[part]
		if !ok || next == nil {
			return nil, fmt.Errorf("%w: '%s'", ErrFormatterNotFound, path)
		}
		node = next
	}

	switch fn := node.(type) {
	case Func:
		return fn, nil
	case func(args ...string) (any, error):
		return fn, nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrNotCallable, path)
	}
}

// Names returns every callable path, sorted.
func (r *Registry) Names() []string {
	var names []string
	walk(r.root, "", func(path string) { names = append(names, path) })
	sort.Strings(names)
	return names
}

// Source returns the path of the merged override, or "" when only the
// built-in formatters are in use.
func (r *Registry) Source() string {
	return r.source
}

func walk(ns Namespace, prefix string, visit func(string)) {
	for name, node := range ns {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		switch n := node.(type) {
		case Namespace:
			walk(n, path, visit)
		case Func, func(args ...string) (any, error):
			visit(path)
		}
	}
}

// Merge returns base deep-merged with override: namespaces merge
// recursively, anything else in override replaces the entry in base.
// Neither input is modified.
func Merge(base, override Namespace) Namespace {
	out := make(Namespace, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, ov := range override {
		bns, baseIsNS := out[k].(Namespace)
		ons, overrideIsNS := ov.(Namespace)
		if baseIsNS && overrideIsNS {
			out[k] = Merge(bns, ons)
			continue
		}
		out[k] = ov
	}
	return out
}
