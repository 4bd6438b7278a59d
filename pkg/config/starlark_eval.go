package config

import (
	"context"
	"fmt"
	"math"
	"time"

	starlarkjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator executes Starlark modules used as setup content and
// formatter sources.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second // Default timeout
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// ExecFile executes a Starlark module and returns its globals.
// The module is cancelled when ctx is done or the evaluator timeout elapses.
func (se *StarlarkEvaluator) ExecFile(ctx context.Context, filename string, src []byte) (starlark.StringDict, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := NewStarlarkThread(filename)

	type result struct {
		globals starlark.StringDict
		err     error
	}
	resultCh := make(chan result, 1)

	go func() {
		globals, err := starlark.ExecFile(thread, filename, src, StarlarkPredeclared())
		resultCh <- result{globals: globals, err: err}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel(evalCtx.Err().Error())
		<-resultCh
		return nil, fmt.Errorf("starlark execution of %s timed out after %v", filename, se.timeout)
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("starlark execution failed: %w", res.err)
		}
		return res.globals, nil
	}
}

// EvaluateSetup executes a Starlark setup module and returns its global
// named "setup".
func (se *StarlarkEvaluator) EvaluateSetup(ctx context.Context, filename string, src []byte) (Value, error) {
	globals, err := se.ExecFile(ctx, filename, src)
	if err != nil {
		return Null(), err
	}

	setup, ok := globals["setup"]
	if !ok {
		return Null(), fmt.Errorf("%s: global 'setup' is not defined", filename)
	}
	return FromStarlark(setup)
}

// NewStarlarkThread returns a thread whose print output is discarded.
func NewStarlarkThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
}

// StarlarkPredeclared returns the names available to every module.
func StarlarkPredeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"json":   starlarkjson.Module,
	}
}

// ToStarlark converts a Value to a Starlark value.
func ToStarlark(v Value) (starlark.Value, error) {
	switch v.kind {
	case KindNull:
		return starlark.None, nil
	case KindBool:
		return starlark.Bool(v.b), nil
	case KindNumber:
		if v.n == math.Trunc(v.n) && math.Abs(v.n) < 1<<53 {
			return starlark.MakeInt64(int64(v.n)), nil
		}
		return starlark.Float(v.n), nil
	case KindString:
		return starlark.String(v.s), nil
	case KindSequence:
		list := make([]starlark.Value, len(v.seq))
		for i, item := range v.seq {
			sv, err := ToStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case KindMapping:
		dict := starlark.NewDict(v.m.Len())
		for _, k := range v.m.keys {
			sv, err := ToStarlark(v.m.values[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported kind: %s", v.kind)
	}
}

// FromStarlark converts a Starlark value to a Value. Dict order is kept.
func FromStarlark(v starlark.Value) (Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return Null(), nil
	case starlark.Bool:
		return Bool(bool(val)), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return Null(), fmt.Errorf("integer too large")
		}
		return Number(float64(i)), nil
	case starlark.Float:
		return Number(float64(val)), nil
	case starlark.String:
		return String(string(val)), nil
	case *starlark.List:
		items := make([]Value, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := FromStarlark(val.Index(i))
			if err != nil {
				return Null(), err
			}
			items[i] = item
		}
		return Value{kind: KindSequence, seq: items}, nil
	case starlark.Tuple:
		items := make([]Value, len(val))
		for i, elem := range val {
			item, err := FromStarlark(elem)
			if err != nil {
				return Null(), err
			}
			items[i] = item
		}
		return Value{kind: KindSequence, seq: items}, nil
	case *starlark.Dict:
		m := NewMapping()
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return Null(), fmt.Errorf("dict key must be string")
			}
			value, err := FromStarlark(item[1])
			if err != nil {
				return Null(), fmt.Errorf("key %q: %w", string(key), err)
			}
			m.Set(string(key), value)
		}
		return MappingValue(m), nil
	case *starlarkstruct.Struct:
		m := NewMapping()
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := FromStarlark(attr)
			if err != nil {
				return Null(), fmt.Errorf("field %q: %w", name, err)
			}
			m.Set(name, value)
		}
		return MappingValue(m), nil
	default:
		return Null(), fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
