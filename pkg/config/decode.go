package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DecodeJSON decodes a single JSON document, keeping object keys in source order.
func DecodeJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return Null(), err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Null(), fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMapping()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Null(), fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return Null(), err
				}
				m.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return MappingValue(m), nil
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeJSONValue(dec)
				if err != nil {
					return Null(), err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return Value{kind: KindSequence, seq: items}, nil
		}
		return Null(), fmt.Errorf("unexpected delimiter %q", t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	}
	return Null(), fmt.Errorf("unexpected token %v", tok)
}

// DecodeYAML decodes a single YAML document, keeping mapping keys in source order.
// An empty document decodes to null.
func DecodeYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Null(), err
	}
	if doc.Kind == 0 {
		return Null(), nil
	}
	return fromYAMLNode(&doc)
}

func fromYAMLNode(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Null(), nil
		}
		return fromYAMLNode(node.Content[0])
	case yaml.AliasNode:
		return fromYAMLNode(node.Alias)
	case yaml.MappingNode:
		m := NewMapping()
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return Null(), fmt.Errorf("line %d: mapping key must be a scalar", keyNode.Line)
			}
			val, err := fromYAMLNode(valNode)
			if err != nil {
				return Null(), err
			}
			m.Set(keyNode.Value, val)
		}
		return MappingValue(m), nil
	case yaml.SequenceNode:
		items := make([]Value, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := fromYAMLNode(child)
			if err != nil {
				return Null(), err
			}
			items = append(items, item)
		}
		return Value{kind: KindSequence, seq: items}, nil
	case yaml.ScalarNode:
		return fromYAMLScalar(node)
	}
	return Null(), fmt.Errorf("line %d: unsupported YAML node", node.Line)
}

func fromYAMLScalar(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Null(), err
		}
		return Bool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			// yaml.v3 rejects some integer spellings as float targets
			i, ierr := strconv.ParseInt(node.Value, 0, 64)
			if ierr != nil {
				return Null(), err
			}
			f = float64(i)
		}
		return Number(f), nil
	default:
		return String(node.Value), nil
	}
}
