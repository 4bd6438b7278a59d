package config

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// JSModule is an evaluated CommonJS-style script.
type JSModule struct {
	Runtime *goja.Runtime
	Exports goja.Value
}

// EvaluateJS runs src as a CommonJS module and returns the value assigned
// to module.exports. Scripts may also assign properties on exports.
func EvaluateJS(filename string, src []byte) (*JSModule, error) {
	vm := goja.New()

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	if err := vm.Set("module", module); err != nil {
		return nil, err
	}
	if err := vm.Set("exports", exports); err != nil {
		return nil, err
	}

	if _, err := vm.RunScript(filename, string(src)); err != nil {
		return nil, fmt.Errorf("javascript execution failed: %w", err)
	}

	return &JSModule{Runtime: vm, Exports: module.Get("exports")}, nil
}

// FromJS converts a JavaScript value to a Value. Object keys keep their
// enumeration order. Functions are rejected.
func FromJS(vm *goja.Runtime, v goja.Value) (Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return Null(), nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		switch p := v.Export().(type) {
		case bool:
			return Bool(p), nil
		case int64:
			return Number(float64(p)), nil
		case float64:
			return Number(p), nil
		case string:
			return String(p), nil
		default:
			return String(v.String()), nil
		}
	}

	if _, isFn := goja.AssertFunction(v); isFn {
		return Null(), fmt.Errorf("functions cannot be used as configuration values")
	}

	if obj.ClassName() == "Array" {
		length := int(obj.Get("length").ToInteger())
		items := make([]Value, length)
		for i := 0; i < length; i++ {
			item, err := FromJS(vm, obj.Get(strconv.Itoa(i)))
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = item
		}
		return Value{kind: KindSequence, seq: items}, nil
	}

	m := NewMapping()
	for _, key := range obj.Keys() {
		item, err := FromJS(vm, obj.Get(key))
		if err != nil {
			return Null(), fmt.Errorf("key %q: %w", key, err)
		}
		m.Set(key, item)
	}
	return MappingValue(m), nil
}

// ToJS converts a Value to a JavaScript value owned by vm.
func ToJS(vm *goja.Runtime, v Value) goja.Value {
	switch v.kind {
	case KindNull:
		return goja.Null()
	case KindMapping:
		obj := vm.NewObject()
		for _, k := range v.m.keys {
			_ = obj.Set(k, ToJS(vm, v.m.values[k]))
		}
		return obj
	case KindSequence:
		items := make([]interface{}, len(v.seq))
		for i, item := range v.seq {
			items[i] = ToJS(vm, item)
		}
		return vm.NewArray(items...)
	default:
		return vm.ToValue(v.ToAny())
	}
}
