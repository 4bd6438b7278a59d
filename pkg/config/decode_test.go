package config

import (
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Value
		wantErr bool
	}{
		{name: "integer", input: "42", want: Number(42)},
		{name: "float", input: "-1.25", want: Number(-1.25)},
		{name: "exponent", input: "1e3", want: Number(1000)},
		{name: "true", input: "true", want: Bool(true)},
		{name: "null", input: "null", want: Null()},
		{name: "quoted string", input: `"hello"`, want: String("hello")},
		{name: "surrounding whitespace", input: "  7 \n", want: Number(7)},
		{name: "array", input: `[1,"a",null]`, want: Sequence(Number(1), String("a"), Null())},
		{name: "bare word", input: "fallback", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "trailing data", input: "42 43", wantErr: true},
		{name: "trailing garbage", input: "42abc", wantErr: true},
		{name: "unterminated object", input: `{"a":1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJSON([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got.Text())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("DecodeJSON(%q) = %s, want %s", tt.input, got.Text(), tt.want.Text())
			}
		})
	}
}

func TestDecodeJSON_KeepsKeyOrder(t *testing.T) {
	v := mustJSON(t, `{"s2":{},"s1":{},"steps":["s1"],"a":1}`)
	if got := strings.Join(v.Mapping().Keys(), ","); got != "s2,s1,steps,a" {
		t.Errorf("unexpected key order %s", got)
	}
}

func TestDecodeYAML(t *testing.T) {
	src := `
web:
  steps: [install, start]
  install:
    packages:
      - nginx
    retries: 3
    ratio: 0.5
    enabled: true
    note: ~
  start: {}
_shared:
  anchor: &a hello
  ref: *a
`
	v, err := DecodeYAML([]byte(src))
	if err != nil {
		t.Fatalf("DecodeYAML failed: %v", err)
	}

	if got := strings.Join(v.Mapping().Keys(), ","); got != "web,_shared" {
		t.Errorf("unexpected group order %s", got)
	}

	web, _ := v.Field("web")
	if got := strings.Join(web.Mapping().Keys(), ","); got != "steps,install,start" {
		t.Errorf("unexpected web keys %s", got)
	}

	install, _ := web.Field("install")
	want := mustJSON(t, `{"packages":["nginx"],"retries":3,"ratio":0.5,"enabled":true,"note":null}`)
	if !install.Equal(want) {
		t.Errorf("install = %s, want %s", install.Text(), want.Text())
	}

	shared, _ := v.Field("_shared")
	if ref, _ := shared.Field("ref"); ref.AsString() != "hello" {
		t.Errorf("expected alias to resolve to hello, got %s", ref.Text())
	}
}

func TestDecodeYAML_Empty(t *testing.T) {
	v, err := DecodeYAML(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsNull() {
		t.Errorf("expected null, got %s", v.Kind())
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		override string
		want     string
	}{
		{
			name:     "nested objects merge",
			base:     `{"a":1,"b":{"x":1,"y":2}}`,
			override: `{"b":{"y":3,"z":4}}`,
			want:     `{"a":1,"b":{"x":1,"y":3,"z":4}}`,
		},
		{
			name:     "arrays are replaced",
			base:     `{"l":[1,2,3]}`,
			override: `{"l":[9]}`,
			want:     `{"l":[9]}`,
		},
		{
			name:     "scalar replaces object",
			base:     `{"a":{"x":1}}`,
			override: `{"a":"flat"}`,
			want:     `{"a":"flat"}`,
		},
		{
			name:     "object replaces scalar",
			base:     `{"a":1}`,
			override: `{"a":{"x":1}}`,
			want:     `{"a":{"x":1}}`,
		},
		{
			name:     "null override wins",
			base:     `{"a":1}`,
			override: `{"a":null}`,
			want:     `{"a":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := mustJSON(t, tt.base)
			got := Merge(base, mustJSON(t, tt.override))
			if !got.Equal(mustJSON(t, tt.want)) {
				t.Errorf("Merge = %s, want %s", got.Text(), tt.want)
			}
			if base.Text() != mustJSON(t, tt.base).Text() {
				t.Errorf("Merge modified its base: %s", base.Text())
			}
		})
	}
}

func TestMerge_KeepsBaseOrderAndAppendsNewKeys(t *testing.T) {
	got := Merge(mustJSON(t, `{"b":1,"a":2}`), mustJSON(t, `{"c":3,"a":4}`))
	if keys := strings.Join(got.Mapping().Keys(), ","); keys != "b,a,c" {
		t.Errorf("unexpected key order %s", keys)
	}
}
