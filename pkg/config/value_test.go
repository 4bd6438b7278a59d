package config

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func mustJSON(t *testing.T, src string) Value {
	t.Helper()
	v, err := DecodeJSON([]byte(src))
	if err != nil {
		t.Fatalf("DecodeJSON(%q) failed: %v", src, err)
	}
	return v
}

func TestValue_Text(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{name: "null", value: Null(), want: "null"},
		{name: "true", value: Bool(true), want: "true"},
		{name: "integer", value: Number(42), want: "42"},
		{name: "fraction", value: Number(1.5), want: "1.5"},
		{name: "negative", value: Number(-3), want: "-3"},
		{name: "string", value: String("plain"), want: "plain"},
		{name: "sequence", value: Sequence(Number(1), String("a")), want: `[1,"a"]`},
		{name: "mapping", value: mustJSON(t, `{"b":1,"a":[true]}`), want: `{"b":1,"a":[true]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValue_ZeroIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() || v.Kind() != KindNull {
		t.Errorf("zero Value should be null, got %s", v.Kind())
	}
}

func TestValue_Equal(t *testing.T) {
	a := mustJSON(t, `{"x":1,"y":[1,2]}`)
	b := mustJSON(t, `{"y":[1,2],"x":1}`)
	c := mustJSON(t, `{"x":1,"y":[2,1]}`)

	if !a.Equal(b) {
		t.Error("mappings with the same entries in a different order should be equal")
	}
	if a.Equal(c) {
		t.Error("sequences with a different order should not be equal")
	}
	if Number(1).Equal(String("1")) {
		t.Error("values of different kinds should not be equal")
	}
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"b": []any{int64(1), "two", nil},
		"a": map[string]any{"flag": true},
	})
	if err != nil {
		t.Fatalf("FromAny failed: %v", err)
	}

	if keys := v.Mapping().Keys(); strings.Join(keys, ",") != "a,b" {
		t.Errorf("expected sorted keys a,b, got %v", keys)
	}
	want := mustJSON(t, `{"a":{"flag":true},"b":[1,"two",null]}`)
	if !v.Equal(want) {
		t.Errorf("FromAny = %s, want %s", v.Text(), want.Text())
	}

	if _, err := FromAny(struct{}{}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestValue_ToAny(t *testing.T) {
	v := mustJSON(t, `{"n":2,"s":"x","l":[null,false]}`)
	got, ok := v.ToAny().(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", v.ToAny())
	}
	if got["n"] != float64(2) || got["s"] != "x" {
		t.Errorf("unexpected scalars: %v", got)
	}
	list, ok := got["l"].([]any)
	if !ok || len(list) != 2 || list[0] != nil || list[1] != false {
		t.Errorf("unexpected list: %v", got["l"])
	}
}

func TestValue_Decode(t *testing.T) {
	var params struct {
		Command string            `json:"command"`
		Args    []string          `json:"args"`
		Env     map[string]string `json:"env"`
	}

	v := mustJSON(t, `{"command":"echo","args":["a","b"],"env":{"K":"V"}}`)
	if err := v.Decode(&params); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if params.Command != "echo" || len(params.Args) != 2 || params.Env["K"] != "V" {
		t.Errorf("unexpected decode result: %+v", params)
	}
}

func TestValue_JSONRoundTripKeepsOrder(t *testing.T) {
	src := `{"zeta":1,"alpha":{"inner":"x","first":null},"mid":[1,2.5]}`

	var v Value
	if err := json.Unmarshal([]byte(src), &v); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != src {
		t.Errorf("round trip changed document:\n got %s\nwant %s", out, src)
	}
}

func TestValue_MarshalYAML(t *testing.T) {
	v := mustJSON(t, `{"name":"web","port":8080,"tags":["a","b"],"extra":null}`)

	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("yaml.Marshal failed: %v", err)
	}

	want := "name: web\nport: 8080\ntags:\n    - a\n    - b\nextra: null\n"
	if string(out) != want {
		t.Errorf("unexpected YAML:\n%s\nwant:\n%s", out, want)
	}
}
