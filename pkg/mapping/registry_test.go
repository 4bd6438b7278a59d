package mapping

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writeStepMap(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	entry, err := r.Resolve("exec")
	if err != nil {
		t.Fatalf("Resolve(exec) failed: %v", err)
	}
	if entry.Action != "exec.run" || entry.Config != "exec" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if r.Source() != "" {
		t.Errorf("expected no override source, got %q", r.Source())
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Resolve("teleport")
	if !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
	if !strings.Contains(err.Error(), "teleport") {
		t.Errorf("expected step name in error, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		content    string
		inSetups   bool
		wantLog    string
		wantSource bool
		check      func(*testing.T, *Registry)
	}{
		{
			name:    "no override",
			wantLog: "no additional stepmap found",
			check: func(t *testing.T, r *Registry) {
				if _, err := r.Resolve("print"); err != nil {
					t.Errorf("default step missing: %v", err)
				}
			},
		},
		{
			name:       "override adds and overrides steps",
			file:       "stepmap.json",
			content:    `{"deploy": {"action": "exec.run", "config": "deploy"}, "exec": {"config": "run"}}`,
			wantSource: true,
			check: func(t *testing.T, r *Registry) {
				deploy, err := r.Resolve("deploy")
				if err != nil || deploy.Action != "exec.run" || deploy.Config != "deploy" {
					t.Errorf("deploy = %+v, %v", deploy, err)
				}
				exec, _ := r.Resolve("exec")
				if exec.Action != "exec.run" || exec.Config != "run" {
					t.Errorf("exec should keep its action and take the new config, got %+v", exec)
				}
				if _, err := r.Resolve("print"); err != nil {
					t.Errorf("default steps should survive the merge: %v", err)
				}
			},
		},
		{
			name:       "override in setups dir",
			file:       "stepmap.yaml",
			content:    "greet:\n  action: print\n  config: greeting\n",
			inSetups:   true,
			wantSource: true,
			check: func(t *testing.T, r *Registry) {
				if _, err := r.Resolve("greet"); err != nil {
					t.Errorf("greet missing: %v", err)
				}
			},
		},
		{
			name:    "unparsable override keeps defaults",
			file:    "stepmap.json",
			content: `{"deploy": `,
			wantLog: "cannot parse the stepmap at",
			check: func(t *testing.T, r *Registry) {
				if _, err := r.Resolve("deploy"); !errors.Is(err, ErrUnknownStep) {
					t.Errorf("expected defaults only, got %v", err)
				}
				if r.Source() != "" {
					t.Errorf("expected no source, got %q", r.Source())
				}
			},
		},
		{
			name:    "invalid entries keep defaults",
			file:    "stepmap.json",
			content: `{"deploy": {"action": "exec.run"}}`,
			wantLog: "cannot parse the stepmap at",
			check: func(t *testing.T, r *Registry) {
				if _, err := r.Resolve("deploy"); !errors.Is(err, ErrUnknownStep) {
					t.Errorf("expected defaults only, got %v", err)
				}
			},
		},
		{
			name:    "non mapping override keeps defaults",
			file:    "stepmap.json",
			content: `["a"]`,
			wantLog: "cannot parse the stepmap at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work := t.TempDir()
			setups := filepath.Join(work, "setups")
			if err := os.MkdirAll(setups, 0o755); err != nil {
				t.Fatal(err)
			}

			path := filepath.Join(work, "stepmap.json")
			if tt.file != "" {
				dir := work
				if tt.inSetups {
					dir = setups
				}
				written := writeStepMap(t, dir, tt.file, tt.content)
				path = written
				if tt.inSetups {
					path = tt.file
				}
			}

			var logs bytes.Buffer
			r, err := Load(LoadOptions{
				Path:      path,
				SetupsDir: setups,
				Logger:    zerolog.New(&logs).Level(zerolog.DebugLevel),
			})
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if tt.wantLog != "" && !strings.Contains(logs.String(), tt.wantLog) {
				t.Errorf("expected log %q, got %s", tt.wantLog, logs.String())
			}
			if tt.wantSource && r.Source() == "" {
				t.Error("expected override source to be recorded")
			}
			if tt.check != nil {
				tt.check(t, r)
			}
		})
	}
}

func TestRegistry_Steps(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	steps := r.Steps()
	for i := 1; i < len(steps); i++ {
		if steps[i-1] > steps[i] {
			t.Fatalf("steps not sorted: %v", steps)
		}
	}
	if len(steps) == 0 {
		t.Error("expected default steps")
	}
}
