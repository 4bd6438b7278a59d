package formatters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/froyo-setup/pkg/config"
)

// LoadOptions controls where the override formatters are looked up.
type LoadOptions struct {
	// Path of the override module, tried directly and then relative to SetupsDir.
	// Starlark (.star) and JavaScript (.js) modules are supported.
	Path string

	// SetupsDir is the setups directory.
	SetupsDir string

	// Timeout bounds the evaluation of a Starlark module.
	Timeout time.Duration

	Logger zerolog.Logger
}

// Load returns the built-in formatters deep-merged with the override
// module found through opts. A missing override is not an error. An
// override that fails to load is ignored with a warning.
func Load(ctx context.Context, opts LoadOptions) *Registry {
	logger := opts.Logger.With().Str("component", "formatters").Logger()
	registry := NewRegistry(Builtin())

	path := config.FindOverride(opts.Path, opts.SetupsDir)
	if path == "" {
		logger.Debug().Str("path", opts.Path).Msg("no additional formatters found")
		return registry
	}

	override, err := LoadModule(ctx, path, opts.Timeout)
	if err != nil {
		logger.Warn().Err(err).Msgf("cannot load the formatters at '%s'", path)
		return registry
	}

	merged := NewRegistry(Merge(registry.root, override))
	merged.source = path
	logger.Debug().Str("path", path).Int("formatters", len(merged.Names())).Msg("extended formatters")
	return merged
}

// LoadModule evaluates a formatter module and returns the namespace it exports.
func LoadModule(ctx context.Context, path string, timeout time.Duration) (Namespace, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".star":
		return loadStarlark(ctx, path, src, timeout)
	case ".js":
		return loadJS(path, src)
	default:
		return nil, fmt.Errorf("unsupported formatter module %s", filepath.Base(path))
	}
}

func loadStarlark(ctx context.Context, path string, src []byte, timeout time.Duration) (Namespace, error) {
	globals, err := config.NewStarlarkEvaluator(timeout).ExecFile(ctx, path, src)
	if err != nil {
		return nil, err
	}

	ns := Namespace{}
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if node := starlarkNode(name, val); node != nil {
			ns[name] = node
		}
	}
	return ns, nil
}

// starlarkNode converts a global into a Func or a Namespace. Functions
// become formatters; dicts and structs become namespaces. Anything else
// is not part of the formatter tree.
func starlarkNode(path string, val starlark.Value) any {
	switch v := val.(type) {
	case starlark.Callable:
		return starlarkFunc(path, v)
	case *starlark.Dict:
		ns := Namespace{}
		for _, item := range v.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				continue
			}
			if node := starlarkNode(path+"."+string(key), item[1]); node != nil {
				ns[string(key)] = node
			}
		}
		return ns
	case *starlarkstruct.Struct:
		ns := Namespace{}
		for _, name := range v.AttrNames() {
			attr, err := v.Attr(name)
			if err != nil {
				continue
			}
			if node := starlarkNode(path+"."+name, attr); node != nil {
				ns[name] = node
			}
		}
		return ns
	default:
		return nil
	}
}

func starlarkFunc(path string, fn starlark.Callable) Func {
	return func(args ...string) (any, error) {
		thread := config.NewStarlarkThread(path)
		sargs := make(starlark.Tuple, len(args))
		for i, arg := range args {
			sargs[i] = starlark.String(arg)
		}

		res, err := starlark.Call(thread, fn, sargs, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if res == starlark.None {
			return nil, nil
		}
		v, err := config.FromStarlark(res)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return v, nil
	}
}

func loadJS(path string, src []byte) (Namespace, error) {
	mod, err := config.EvaluateJS(path, src)
	if err != nil {
		return nil, err
	}

	exports, ok := mod.Exports.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("module.exports must be an object")
	}

	// goja runtimes are not safe for concurrent use
	var mu sync.Mutex
	return jsNamespace(mod.Runtime, "", exports, &mu), nil
}

func jsNamespace(vm *goja.Runtime, prefix string, obj *goja.Object, mu *sync.Mutex) Namespace {
	ns := Namespace{}
	for _, key := range obj.Keys() {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		val := obj.Get(key)
		if fn, ok := goja.AssertFunction(val); ok {
			ns[key] = jsFunc(vm, path, fn, mu)
			continue
		}
		if child, ok := val.(*goja.Object); ok && child.ClassName() == "Object" {
			ns[key] = jsNamespace(vm, path, child, mu)
		}
	}
	return ns
}

func jsFunc(vm *goja.Runtime, path string, fn goja.Callable, mu *sync.Mutex) Func {
	return func(args ...string) (any, error) {
		mu.Lock()
		defer mu.Unlock()

		jsArgs := make([]goja.Value, len(args))
		for i, arg := range args {
			jsArgs[i] = vm.ToValue(arg)
		}

		res, err := fn(goja.Undefined(), jsArgs...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		v, err := config.FromJS(vm, res)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if v.IsNull() {
			return nil, nil
		}
		return v, nil
	}
}
