package config

import (
	"context"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// CUEParser evaluates CUE setup sources.
type CUEParser struct {
	ctx *cue.Context
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{
		ctx: cuecontext.New(),
	}
}

// Parse compiles src and converts the concrete result to a Value.
// Regular fields keep their declaration order; definitions and hidden
// fields are not part of the result.
func (cp *CUEParser) Parse(_ context.Context, filename string, src []byte) (Value, error) {
	val := cp.ctx.CompileBytes(src, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return Null(), fmt.Errorf("failed to compile %s: %s", filename, formatCUEError(err))
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return Null(), fmt.Errorf("%s is not concrete: %s", filename, formatCUEError(err))
	}
	return cp.ExtractValue(val)
}

// ExtractValue converts a concrete CUE value to a Value.
func (cp *CUEParser) ExtractValue(val cue.Value) (Value, error) {
	switch val.Kind() {
	case cue.NullKind:
		return Null(), nil
	case cue.BoolKind:
		b, err := val.Bool()
		if err != nil {
			return Null(), err
		}
		return Bool(b), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := val.Float64()
		if err != nil {
			return Null(), err
		}
		return Number(f), nil
	case cue.StringKind:
		s, err := val.String()
		if err != nil {
			return Null(), err
		}
		return String(s), nil
	case cue.BytesKind:
		b, err := val.Bytes()
		if err != nil {
			return Null(), err
		}
		return String(string(b)), nil
	case cue.ListKind:
		iter, err := val.List()
		if err != nil {
			return Null(), err
		}
		var items []Value
		for iter.Next() {
			item, err := cp.ExtractValue(iter.Value())
			if err != nil {
				return Null(), err
			}
			items = append(items, item)
		}
		return Value{kind: KindSequence, seq: items}, nil
	case cue.StructKind:
		iter, err := val.Fields()
		if err != nil {
			return Null(), err
		}
		m := NewMapping()
		for iter.Next() {
			sel := iter.Selector()
			name := sel.String()
			if sel.IsString() {
				name = sel.Unquoted()
			}
			item, err := cp.ExtractValue(iter.Value())
			if err != nil {
				return Null(), fmt.Errorf("field %s: %w", name, err)
			}
			m.Set(name, item)
		}
		return MappingValue(m), nil
	default:
		return Null(), fmt.Errorf("unsupported CUE value of kind %s at %s", val.Kind(), val.Path())
	}
}

// formatCUEError flattens a CUE error list into a single line per error.
func formatCUEError(err error) string {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			msg += fmt.Sprintf("%s:%d:%d: ", pos[0].Filename(), pos[0].Line(), pos[0].Column())
		}
		msg += errors.Details(e, nil)
	}
	return msg
}
