package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	// KindNull is the zero Kind. A zero Value is null.
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// String returns the lower case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a configuration value: null, a boolean, a number, a string,
// a sequence of values or an ordered mapping of string keys to values.
//
// Values are treated as immutable once they are shared. Operations that
// transform a value (Merge, template resolution) build new values.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	seq  []Value
	m    *Mapping
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Sequence returns a sequence holding items.
func Sequence(items ...Value) Value {
	seq := make([]Value, len(items))
	copy(seq, items)
	return Value{kind: KindSequence, seq: seq}
}

// MappingValue wraps m as a Value. A nil mapping yields an empty mapping.
func MappingValue(m *Mapping) Value {
	if m == nil {
		m = NewMapping()
	}
	return Value{kind: KindMapping, m: m}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v and false for any other kind.
func (v Value) AsBool() bool { return v.kind == KindBool && v.b }

// AsNumber returns the number held by v and 0 for any other kind.
func (v Value) AsNumber() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.n
}

// AsString returns the string held by v and "" for any other kind.
// Use Text for the textual form of any kind.
func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Items returns the elements of a sequence. The returned slice must not be modified.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.seq
}

// Mapping returns the mapping held by v, or nil.
func (v Value) Mapping() *Mapping {
	if v.kind != KindMapping {
		return nil
	}
	return v.m
}

// Field returns the value stored under key when v is a mapping.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Null(), false
	}
	return v.m.Get(key)
}

// Text returns the text form of v as spliced into strings: strings verbatim,
// numbers in their shortest decimal form, booleans and null as their JSON
// literals, and containers as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(data)
	}
}

// String implements fmt.Stringer.
func (v Value) String() string { return v.Text() }

// Equal reports whether v and other hold the same data. Mapping key order is ignored.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if v.m.Len() != other.m.Len() {
			return false
		}
		for _, k := range v.m.keys {
			ov, ok := other.m.Get(k)
			if !ok || !v.m.values[k].Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

func formatNumber(n float64) string {
	if math.IsInf(n, 1) {
		return "Infinity"
	}
	if math.IsInf(n, -1) {
		return "-Infinity"
	}
	if math.IsNaN(n) {
		return "NaN"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FromAny converts plain Go data into a Value. Maps with string keys are
// converted with their keys sorted, since Go maps carry no order.
func FromAny(data any) (Value, error) {
	switch d := data.(type) {
	case nil:
		return Null(), nil
	case Value:
		return d, nil
	case *Mapping:
		return MappingValue(d), nil
	case bool:
		return Bool(d), nil
	case int:
		return Number(float64(d)), nil
	case int32:
		return Number(float64(d)), nil
	case int64:
		return Number(float64(d)), nil
	case uint:
		return Number(float64(d)), nil
	case uint32:
		return Number(float64(d)), nil
	case uint64:
		return Number(float64(d)), nil
	case float32:
		return Number(float64(d)), nil
	case float64:
		return Number(d), nil
	case json.Number:
		f, err := d.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", d, err)
		}
		return Number(f), nil
	case string:
		return String(d), nil
	case []byte:
		return String(string(d)), nil
	case []string:
		items := make([]Value, len(d))
		for i, s := range d {
			items[i] = String(s)
		}
		return Value{kind: KindSequence, seq: items}, nil
	case []any:
		items := make([]Value, len(d))
		for i, item := range d {
			v, err := FromAny(item)
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return Value{kind: KindSequence, seq: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMapping()
		for _, k := range keys {
			v, err := FromAny(d[k])
			if err != nil {
				return Null(), fmt.Errorf("key %q: %w", k, err)
			}
			m.Set(k, v)
		}
		return MappingValue(m), nil
	case map[string]string:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMapping()
		for _, k := range keys {
			m.Set(k, String(d[k]))
		}
		return MappingValue(m), nil
	default:
		return Null(), fmt.Errorf("unsupported type: %T", data)
	}
}

// ToAny converts v into plain Go data: nil, bool, float64, string, []any
// and map[string]any.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.ToAny()
		}
		return out
	case KindMapping:
		out := make(map[string]any, v.m.Len())
		for _, k := range v.m.keys {
			out[k] = v.m.values[k].ToAny()
		}
		return out
	default:
		return nil
	}
}

// Decode stores v into the value pointed to by into, following the
// encoding/json rules for struct fields and tags.
func (v Value) Decode(into any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Mapping keys keep their order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		data, err := json.Marshal(v.n)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindString:
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')
		for i, k := range v.m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.m.values[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// MarshalYAML implements yaml.Marshaler. Mapping keys keep their order.
func (v Value) MarshalYAML() (interface{}, error) {
	return v.yamlNode(), nil
}

func (v Value) yamlNode() *yaml.Node {
	switch v.kind {
	case KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindNumber:
		tag := "!!float"
		if v.n == math.Trunc(v.n) && !math.IsInf(v.n, 0) {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: formatYAMLNumber(v.n)}
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.s}
	case KindSequence:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.seq {
			node.Content = append(node.Content, item.yamlNode())
		}
		return node
	default:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.m.keys {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				v.m.values[k].yamlNode())
		}
		return node
	}
}

func formatYAMLNumber(n float64) string {
	switch {
	case math.IsInf(n, 1):
		return ".inf"
	case math.IsInf(n, -1):
		return "-.inf"
	case math.IsNaN(n):
		return ".nan"
	}
	return formatNumber(n)
}

// UnmarshalYAML implements yaml.Unmarshaler, preserving mapping key order.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	decoded, err := fromYAMLNode(node)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}
