package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#Custom: {
	field1: string
	field2: int
}
`

	if err := sr.RegisterSchema("custom", customSchema, "#Custom"); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}
	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}

	if err := sr.RegisterSchema("broken", "#X: {", ""); err == nil {
		t.Error("expected compile error")
	}
	if err := sr.RegisterSchema("missing", "#X: int", "#Y"); err == nil {
		t.Error("expected error for missing definition")
	}
}

func TestSchemaRegistry_ListSchemas(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.RegisterSchema("another", "#A: string", "#A"); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	names := sr.ListSchemas()
	if len(names) != 2 || names[0] != "another" || names[1] != "setup" {
		t.Errorf("unexpected schemas %v", names)
	}
}

func TestSchemaRegistry_ValidateSetup(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "empty setup", content: `{}`},
		{name: "group with steps", content: `{"web":{"steps":["a","b"],"a":{"x":1},"b":null}}`},
		{name: "group without steps", content: `{"web":{"a":{"x":[1,2]}}}`},
		{name: "group is a list", content: `{"web":[1]}`, wantErr: true},
		{name: "group is a string", content: `{"web":"a"}`, wantErr: true},
		{name: "steps is a string", content: `{"web":{"steps":"a"}}`, wantErr: true},
		{name: "steps holds numbers", content: `{"web":{"steps":[1]}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateSetup(ctx, mustJSON(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSetup() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_UnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.ValidateAgainstSchema(context.Background(), "nope", Null()); err == nil {
		t.Error("expected error for unknown schema")
	}
}
