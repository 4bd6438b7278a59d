package actions

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// exitModule returns a WASI command whose _start calls proc_exit(code).
func exitModule(code byte) []byte {
	module := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// types: (i32) -> () and () -> ()
	module = append(module, 0x01, 0x08, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x00, 0x00)

	// import wasi_snapshot_preview1.proc_exit as func 0
	imp := []byte{0x01, 0x16}
	imp = append(imp, "wasi_snapshot_preview1"...)
	imp = append(imp, 0x09)
	imp = append(imp, "proc_exit"...)
	imp = append(imp, 0x00, 0x00)
	module = append(module, 0x02, byte(len(imp)))
	module = append(module, imp...)

	// func 1 has type 1
	module = append(module, 0x03, 0x02, 0x01, 0x01)

	// export func 1 as _start
	exp := []byte{0x01, 0x06}
	exp = append(exp, "_start"...)
	exp = append(exp, 0x00, 0x01)
	module = append(module, 0x07, byte(len(exp)))
	module = append(module, exp...)

	// body: i32.const code; call 0; end
	module = append(module, 0x0a, 0x08, 0x01, 0x06, 0x00, 0x41, code, 0x10, 0x00, 0x0b)
	return module
}

func writeWasm(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWasmRun(t *testing.T) {
	empty := writeWasm(t, "empty.wasm", []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})
	exitZero := writeWasm(t, "zero.wasm", exitModule(0))
	exitTwo := writeWasm(t, "two.wasm", exitModule(2))
	garbage := writeWasm(t, "garbage.wasm", []byte("not wasm"))

	tests := []struct {
		name    string
		cfg     string
		wantErr string
	}{
		{name: "module without start", cfg: `{"module": "` + empty + `"}`},
		{name: "exit code zero", cfg: `{"module": "` + exitZero + `", "args": ["-v"], "env": {"A": "1"}}`},
		{name: "non-zero exit code", cfg: `{"module": "` + exitTwo + `"}`, wantErr: "exited with code 2"},
		{name: "invalid module", cfg: `{"module": "` + garbage + `"}`, wantErr: "failed to compile"},
		{name: "missing file", cfg: `{"module": "` + filepath.Join(t.TempDir(), "none.wasm") + `"}`, wantErr: "failed to read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newHarness().invoke(t, "wasm.run", tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if err := newHarness().invoke(t, "wasm.run", `{}`); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
