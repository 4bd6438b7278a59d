package template

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/formatters"
)

func testEngine() *Engine {
	registry := formatters.NewRegistry(formatters.Merge(formatters.Builtin(), formatters.Namespace{
		"ns": formatters.Namespace{
			"fn": formatters.Func(func(args ...string) (any, error) {
				return strings.Join(args, "-"), nil
			}),
			"count": formatters.Func(func(args ...string) (any, error) {
				return len(args), nil
			}),
			"nothing": formatters.Func(func(args ...string) (any, error) {
				return nil, nil
			}),
			"fail": formatters.Func(func(args ...string) (any, error) {
				return nil, errors.New("boom")
			}),
			"list": formatters.Func(func(args ...string) (any, error) {
				return []any{"a", 1}, nil
			}),
		},
	}))
	return New(registry, zerolog.Nop())
}

func mustJSON(t *testing.T, src string) config.Value {
	t.Helper()
	v, err := config.DecodeJSON([]byte(src))
	if err != nil {
		t.Fatalf("DecodeJSON(%q) failed: %v", src, err)
	}
	return v
}

func TestEngine_ResolveString(t *testing.T) {
	engine := testEngine()

	tests := []struct {
		name    string
		input   string
		payload Payload
		want    config.Value
	}{
		{
			name:    "payload value decodes to a number",
			input:   "${name}",
			payload: Payload{"name": config.String("42")},
			want:    config.Number(42),
		},
		{
			name:  "default stays textual",
			input: "${name|fallback}",
			want:  config.String("fallback"),
		},
		{
			name:  "default decodes to a number",
			input: "${name|42}",
			want:  config.Number(42),
		},
		{
			name:  "default decodes to a boolean",
			input: "${flag|true}",
			want:  config.Bool(true),
		},
		{
			name:  "default decodes to null",
			input: "${v|null}",
			want:  config.Null(),
		},
		{
			name:  "quoted default decodes to its string",
			input: `${v|"007"}`,
			want:  config.String("007"),
		},
		{
			name:  "missing value without default becomes empty",
			input: "host-${name}",
			want:  config.String("host-"),
		},
		{
			name:    "null payload entry uses the default",
			input:   "${name|dflt}",
			payload: Payload{"name": config.Null()},
			want:    config.String("dflt"),
		},
		{
			name:    "payload wins over default",
			input:   "${name|dflt}",
			payload: Payload{"name": config.String("given")},
			want:    config.String("given"),
		},
		{
			name:    "substitution inside text",
			input:   "https://${host}:8080/",
			payload: Payload{"host": config.String("example.com")},
			want:    config.String("https://example.com:8080/"),
		},
		{
			name:    "only the rightmost variable token is substituted",
			input:   "${a}-${b}",
			payload: Payload{"a": config.String("x"), "b": config.String("y")},
			want:    config.String("${a}-y"),
		},
		{
			name:    "structured payload decodes back",
			input:   "${list}",
			payload: Payload{"list": mustJSON(t, `[1,"two"]`)},
			want:    mustJSON(t, `[1,"two"]`),
		},
		{
			name:    "number payload",
			input:   "${n}",
			payload: Payload{"n": config.Number(1.5)},
			want:    config.Number(1.5),
		},
		{
			name:  "no token leaves literals alone",
			input: "42",
			want:  config.String("42"),
		},
		{
			name:  "formatter with trimmed arguments",
			input: "%[ns.fn:1, 2]",
			want:  config.String("1-2"),
		},
		{
			name:  "formatter without arguments",
			input: "%[ns.count]",
			want:  config.String("0"),
		},
		{
			name:  "formatter with empty argument list",
			input: "%[ns.count:]",
			want:  config.String("0"),
		},
		{
			name:  "formatter inside text",
			input: "name=%[str.upper:web]!",
			want:  config.String("name=WEB!"),
		},
		{
			name:  "only the rightmost formatter token is applied",
			input: "%[str.upper:a] %[str.upper:b]",
			want:  config.String("%[str.upper:a] B"),
		},
		{
			name:    "variable feeds formatter",
			input:   "%[str.upper:${name}]",
			payload: Payload{"name": config.String("web")},
			want:    config.String("WEB"),
		},
		{
			name:  "nil result leaves the token",
			input: "x %[ns.nothing]",
			want:  config.String("x %[ns.nothing]"),
		},
		{
			name:  "namespace path leaves the token",
			input: "%[ns]",
			want:  config.String("%[ns]"),
		},
		{
			name:  "non string result uses its text form",
			input: "%[ns.list]",
			want:  config.String(`["a",1]`),
		},
		{
			name:  "decoded value skips the formatter stage",
			input: "${n|7}",
			want:  config.Number(7),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.ResolveString(tt.input, tt.payload)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ResolveString(%q) = %s (%s), want %s (%s)",
					tt.input, got.Text(), got.Kind(), tt.want.Text(), tt.want.Kind())
			}
		})
	}
}

func TestEngine_FormatterErrors(t *testing.T) {
	engine := testEngine()

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "missing formatter", input: "%[ns.missing]", wantErr: formatters.ErrFormatterNotFound},
		{name: "missing namespace", input: "%[nope.fn:1]", wantErr: formatters.ErrFormatterNotFound},
		{name: "failing formatter", input: "%[ns.fail]", wantErr: ErrFormatterFailed},
		{name: "arity error", input: "%[str.replace:a]", wantErr: ErrFormatterFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.ResolveString(tt.input, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEngine_ResolveTree(t *testing.T) {
	engine := testEngine()

	input := mustJSON(t, `{
		"host": "${host}",
		"port": "${port|80}",
		"enabled": true,
		"retries": 3,
		"nothing": null,
		"tags": ["static", "%[str.upper:${env|dev}]"],
		"nested": {"path": "%[path.join:/srv, ${app}]"}
	}`)
	payload := Payload{"host": config.String("web1"), "app": config.String("shop")}

	got, err := engine.Resolve(input, payload)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := mustJSON(t, `{
		"host": "web1",
		"port": 80,
		"enabled": true,
		"retries": 3,
		"nothing": null,
		"tags": ["static", "DEV"],
		"nested": {"path": "/srv/shop"}
	}`)
	if !got.Equal(want) {
		t.Errorf("Resolve = %s, want %s", got.Text(), want.Text())
	}
	if keys := strings.Join(got.Mapping().Keys(), ","); keys != "host,port,enabled,retries,nothing,tags,nested" {
		t.Errorf("key order not preserved: %s", keys)
	}
}

func TestEngine_ResolveDoesNotModifyInput(t *testing.T) {
	engine := testEngine()

	block := mustJSON(t, `{"name": "${name}", "list": ["${name}"]}`)
	before := block.Text()

	first, err := engine.Resolve(block, Payload{"name": config.String("a")})
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.Resolve(block, Payload{"name": config.String("b")})
	if err != nil {
		t.Fatal(err)
	}

	if block.Text() != before {
		t.Errorf("input modified: %s", block.Text())
	}
	if first.Text() == second.Text() {
		t.Errorf("shared block should resolve independently, got %s twice", first.Text())
	}
}

func TestEngine_ErrorPath(t *testing.T) {
	engine := testEngine()

	_, err := engine.Resolve(mustJSON(t, `{"a": {"list": ["ok", "%[nope.x]"]}}`), nil)

	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("expected ResolveError, got %v", err)
	}
	if resolveErr.Path != "a.list[1]" {
		t.Errorf("unexpected path %q", resolveErr.Path)
	}
	if !errors.Is(err, formatters.ErrFormatterNotFound) {
		t.Errorf("expected ErrFormatterNotFound in chain, got %v", err)
	}
}
