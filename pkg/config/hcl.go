package config

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// DecodeHCL decodes an HCL setup source.
//
// Top level attributes and blocks become mapping keys in source order. A
// block with labels nests one mapping level per label. Object constructor
// expressions keep their item order. Template interpolation is not
// evaluated, so literal "${name}" tokens must be written as "$${name}".
func DecodeHCL(filename string, src []byte) (Value, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return Null(), diags
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return Null(), fmt.Errorf("%s: unexpected HCL body type %T", filename, file.Body)
	}
	return hclBodyValue(body)
}

func hclBodyValue(body *hclsyntax.Body) (Value, error) {
	type entry struct {
		offset int
		attr   *hclsyntax.Attribute
		block  *hclsyntax.Block
	}

	entries := make([]entry, 0, len(body.Attributes)+len(body.Blocks))
	for _, attr := range body.Attributes {
		entries = append(entries, entry{offset: attr.SrcRange.Start.Byte, attr: attr})
	}
	for _, block := range body.Blocks {
		entries = append(entries, entry{offset: block.TypeRange.Start.Byte, block: block})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].offset < entries[j].offset })

	m := NewMapping()
	for _, e := range entries {
		if e.attr != nil {
			v, err := hclExprValue(e.attr.Expr)
			if err != nil {
				return Null(), err
			}
			m.Set(e.attr.Name, v)
			continue
		}

		v, err := hclBodyValue(e.block.Body)
		if err != nil {
			return Null(), err
		}
		path := append([]string{e.block.Type}, e.block.Labels...)
		setNested(m, path, v)
	}
	return MappingValue(m), nil
}

// setNested stores v at path below m, merging with mappings already there.
func setNested(m *Mapping, path []string, v Value) {
	key := path[0]
	if len(path) == 1 {
		if existing, ok := m.Get(key); ok {
			v = Merge(existing, v)
		}
		m.Set(key, v)
		return
	}

	child := NewMapping()
	if existing, ok := m.Get(key); ok && existing.Kind() == KindMapping {
		child = existing.Mapping().Clone()
	}
	setNested(child, path[1:], v)
	m.Set(key, MappingValue(child))
}

func hclExprValue(expr hclsyntax.Expression) (Value, error) {
	switch e := expr.(type) {
	case *hclsyntax.ObjectConsExpr:
		m := NewMapping()
		for _, item := range e.Items {
			keyVal, diags := item.KeyExpr.Value(nil)
			if diags.HasErrors() {
				return Null(), diags
			}
			if keyVal.Type() != cty.String || keyVal.IsNull() || !keyVal.IsKnown() {
				return Null(), fmt.Errorf("%s: object key must be a string", item.KeyExpr.Range())
			}
			v, err := hclExprValue(item.ValueExpr)
			if err != nil {
				return Null(), err
			}
			m.Set(keyVal.AsString(), v)
		}
		return MappingValue(m), nil
	case *hclsyntax.TupleConsExpr:
		items := make([]Value, 0, len(e.Exprs))
		for _, itemExpr := range e.Exprs {
			v, err := hclExprValue(itemExpr)
			if err != nil {
				return Null(), err
			}
			items = append(items, v)
		}
		return Value{kind: KindSequence, seq: items}, nil
	default:
		val, diags := expr.Value(nil)
		if diags.HasErrors() {
			return Null(), diags
		}
		return ctyToValue(val)
	}
}

// ctyToValue converts an evaluated cty value. Object and map attributes
// come out in lexical order, as cty iterates them.
func ctyToValue(v cty.Value) (Value, error) {
	if v.IsNull() || !v.IsKnown() {
		return Null(), nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return String(v.AsString()), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInf() {
			return Null(), fmt.Errorf("number out of range")
		}
		f, _ := bf.Float64()
		return Number(f), nil
	case ty == cty.Bool:
		return Bool(v.True()), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		var items []Value
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			item, err := ctyToValue(elem)
			if err != nil {
				return Null(), err
			}
			items = append(items, item)
		}
		return Value{kind: KindSequence, seq: items}, nil
	case ty.IsMapType() || ty.IsObjectType():
		m := NewMapping()
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			item, err := ctyToValue(elem)
			if err != nil {
				return Null(), err
			}
			m.Set(key.AsString(), item)
		}
		return MappingValue(m), nil
	default:
		return Null(), fmt.Errorf("unsupported HCL value type %s", ty.FriendlyName())
	}
}
