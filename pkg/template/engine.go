// Package template resolves configuration trees against a payload and a
// set of formatters.
//
// Each string leaf goes through two stages. The first substitutes one
// variable token, ${name} or ${name|default}, and then tries to decode
// the whole string as a JSON literal. The second applies one formatter
// token, %[ns.fn] or %[ns.fn:arg1,arg2]. In both stages only the
// rightmost token of a string is matched; other tokens are left as text.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/formatters"
)

var (
	// variablePattern matches the rightmost ${name} or ${name|default} token.
	variablePattern = regexp.MustCompile(`.*(\$\{([^|]+)(\|(.*))?\}).*`)

	// formatterPattern matches the rightmost %[path] or %[path:args] token.
	formatterPattern = regexp.MustCompile(`.*(%\[([^:]+)(|:|:(.+))\]).*`)
)

// ErrFormatterFailed is returned when a formatter reports an error.
var ErrFormatterFailed = errors.New("formatter failed")

// FormatterResolver looks up formatters by dotted path.
type FormatterResolver interface {
	Resolve(path string) (formatters.Func, error)
}

// ResolveError locates a resolution failure within a configuration tree.
type ResolveError struct {
	// Path is the location of the failing leaf, e.g. "install.packages[0]".
	Path string

	Err error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Engine resolves configuration values. It holds no per-call state and
// never modifies the values it is given.
type Engine struct {
	formatters FormatterResolver
	logger     zerolog.Logger
}

// New creates an engine applying formatters from resolver.
func New(resolver FormatterResolver, logger zerolog.Logger) *Engine {
	return &Engine{
		formatters: resolver,
		logger:     logger.With().Str("component", "template").Logger(),
	}
}

// Resolve returns a resolved copy of v. Mappings and sequences are
// resolved element by element keeping keys and order; null, booleans
// and numbers are returned unchanged.
func (e *Engine) Resolve(v config.Value, payload Payload) (config.Value, error) {
	return e.resolve(v, payload, "")
}

func (e *Engine) resolve(v config.Value, payload Payload, path string) (config.Value, error) {
	switch v.Kind() {
	case config.KindMapping:
		src := v.Mapping()
		out := config.NewMapping()
		for _, key := range src.Keys() {
			item, _ := src.Get(key)
			resolved, err := e.resolve(item, payload, joinPath(path, key))
			if err != nil {
				return config.Null(), err
			}
			out.Set(key, resolved)
		}
		return config.MappingValue(out), nil

	case config.KindSequence:
		src := v.Items()
		out := make([]config.Value, len(src))
		for i, item := range src {
			resolved, err := e.resolve(item, payload, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return config.Null(), err
			}
			out[i] = resolved
		}
		return config.Sequence(out...), nil

	case config.KindString:
		resolved, err := e.ResolveString(v.AsString(), payload)
		if err != nil {
			return config.Null(), &ResolveError{Path: path, Err: err}
		}
		return resolved, nil

	case config.KindNull, config.KindBool, config.KindNumber:
		return v, nil
	}
	return v, nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// ResolveString runs both stages on a single string leaf.
func (e *Engine) ResolveString(s string, payload Payload) (config.Value, error) {
	v := Substitute(s, payload)
	if v.Kind() != config.KindString {
		return v, nil
	}
	return e.ApplyFormatter(v.AsString())
}

// Substitute replaces the rightmost variable token in s. The value comes
// from the payload; a missing or null payload entry falls back to the
// token default, or to the empty string when there is none. The result
// is then decoded as a JSON literal when possible. A string without a
// variable token is returned unchanged and is not decoded.
func Substitute(s string, payload Payload) config.Value {
	m := variablePattern.FindStringSubmatchIndex(s)
	if m == nil {
		return config.String(s)
	}

	name := s[m[4]:m[5]]
	text := ""
	if val, ok := payload[name]; ok && !val.IsNull() {
		text = val.Text()
	} else if m[8] >= 0 {
		text = s[m[8]:m[9]]
	}

	out := s[:m[2]] + text + s[m[3]:]
	if decoded, err := config.DecodeJSON([]byte(out)); err == nil {
		return decoded
	}
	return config.String(out)
}

// ApplyFormatter replaces the rightmost formatter token in s with the text
// form of the formatter result. A path that does not exist is an error;
// a path naming a namespace, or a formatter returning nil, leaves s as is.
func (e *Engine) ApplyFormatter(s string) (config.Value, error) {
	m := formatterPattern.FindStringSubmatchIndex(s)
	if m == nil {
		return config.String(s), nil
	}

	path := s[m[4]:m[5]]
	fn, err := e.formatters.Resolve(path)
	if errors.Is(err, formatters.ErrNotCallable) {
		return config.String(s), nil
	}
	if err != nil {
		return config.Null(), err
	}

	var args []string
	if m[8] >= 0 {
		for _, arg := range strings.Split(s[m[8]:m[9]], ",") {
			args = append(args, strings.TrimSpace(arg))
		}
	}

	res, err := fn(args...)
	if err != nil {
		return config.Null(), fmt.Errorf("%w: '%s': %v", ErrFormatterFailed, path, err)
	}
	if res == nil {
		return config.String(s), nil
	}

	text := textOf(res)
	e.logger.Debug().Str("formatter", path).Strs("args", args).Msg("applied formatter")
	return config.String(s[:m[2]] + text + s[m[3]:]), nil
}

func textOf(res any) string {
	switch r := res.(type) {
	case string:
		return r
	case config.Value:
		return r.Text()
	case fmt.Stringer:
		return r.String()
	}
	if v, err := config.FromAny(res); err == nil {
		return v.Text()
	}
	return fmt.Sprint(res)
}
