package formatters

import (
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Builtin returns the default formatter namespaces.
func Builtin() Namespace {
	return Namespace{
		"str": Namespace{
			"upper":   unary(strings.ToUpper),
			"lower":   unary(strings.ToLower),
			"trim":    unary(strings.TrimSpace),
			"replace": Func(strReplace),
			"concat":  Func(strConcat),
			"join":    Func(strJoin),
			"default": Func(strDefault),
		},
		"env": Namespace{
			"get": Func(envGet),
		},
		"time": Namespace{
			"now":  Func(timeNow),
			"unix": Func(timeUnix),
		},
		"uuid": Namespace{
			"new": Func(uuidNew),
		},
		"b64": Namespace{
			"encode": Func(b64Encode),
			"decode": Func(b64Decode),
		},
		"path": Namespace{
			"join": Func(pathJoin),
			"base": unary(path.Base),
			"dir":  unary(path.Dir),
		},
		"json": Namespace{
			"quote": unary(strconv.Quote),
		},
	}
}

// arity checks the argument count. A negative most means no upper bound.
func arity(name string, args []string, least, most int) error {
	if len(args) < least || (most >= 0 && len(args) > most) {
		switch {
		case least == most:
			return fmt.Errorf("%s expects %d argument(s), got %d", name, least, len(args))
		case most < 0:
			return fmt.Errorf("%s expects at least %d argument(s), got %d", name, least, len(args))
		}
		return fmt.Errorf("%s expects between %d and %d argument(s), got %d", name, least, most, len(args))
	}
	return nil
}

func unary(fn func(string) string) Func {
	return func(args ...string) (any, error) {
		if err := arity("unary formatter", args, 1, 1); err != nil {
			return nil, err
		}
		return fn(args[0]), nil
	}
}

func strReplace(args ...string) (any, error) {
	if err := arity("str.replace", args, 3, 3); err != nil {
		return nil, err
	}
	return strings.ReplaceAll(args[0], args[1], args[2]), nil
}

func strConcat(args ...string) (any, error) {
	return strings.Join(args, ""), nil
}

func strJoin(args ...string) (any, error) {
	if err := arity("str.join", args, 1, -1); err != nil {
		return nil, err
	}
	return strings.Join(args[1:], args[0]), nil
}

func strDefault(args ...string) (any, error) {
	if err := arity("str.default", args, 2, 2); err != nil {
		return nil, err
	}
	if args[0] == "" {
		return args[1], nil
	}
	return args[0], nil
}

func envGet(args ...string) (any, error) {
	if err := arity("env.get", args, 1, 2); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv(args[0]); ok {
		return v, nil
	}
	if len(args) == 2 {
		return args[1], nil
	}
	return "", nil
}

// now is replaced in tests.
var now = time.Now

func timeNow(args ...string) (any, error) {
	if err := arity("time.now", args, 0, 1); err != nil {
		return nil, err
	}
	layout := time.RFC3339
	if len(args) == 1 && args[0] != "" {
		layout = args[0]
	}
	return now().UTC().Format(layout), nil
}

func timeUnix(args ...string) (any, error) {
	if err := arity("time.unix", args, 0, 0); err != nil {
		return nil, err
	}
	return now().Unix(), nil
}

func uuidNew(args ...string) (any, error) {
	if err := arity("uuid.new", args, 0, 0); err != nil {
		return nil, err
	}
	return uuid.New().String(), nil
}

func b64Encode(args ...string) (any, error) {
	if err := arity("b64.encode", args, 1, 1); err != nil {
		return nil, err
	}
	return base64.StdEncoding.EncodeToString([]byte(args[0])), nil
}

func b64Decode(args ...string) (any, error) {
	if err := arity("b64.decode", args, 1, 1); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(args[0])
	if err != nil {
		return nil, fmt.Errorf("b64.decode: %w", err)
	}
	return string(data), nil
}

func pathJoin(args ...string) (any, error) {
	return path.Join(args...), nil
}
