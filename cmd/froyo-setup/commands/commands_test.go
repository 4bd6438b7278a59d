package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/froyo-setup/pkg/engine"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI executes the root command with args and stdin.
func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCommand("test", "none", "today")
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeSetup(t *testing.T, dir, name, content string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write setup: %v", err)
	}
}

func TestInit_PlanExample(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "setups")

	res := runCLI(t, "", "init", dir)
	if res.err != nil {
		t.Fatalf("init error = %v\n%s", res.err, res.stderr)
	}
	for _, name := range []string{"example.json", "stepmap.json", "formatters.star", "keys/id_ed25519", "keys/id_ed25519.pub"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("init did not create %s: %v", name, err)
		}
	}

	pub, err := os.ReadFile(filepath.Join(dir, "keys", "id_ed25519.pub"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(pub), "ssh-ed25519 ") {
		t.Errorf("public key = %q", pub)
	}

	again := runCLI(t, "", "init", dir)
	if again.err != nil {
		t.Fatalf("second init error = %v", again.err)
	}
	if !strings.Contains(again.stdout, "SSH keypair already exists") {
		t.Errorf("second init output:\n%s", again.stdout)
	}

	res = runCLI(t, "", "plan", "example", "--setups-dir", dir, "-g", "hello", "-p", "name=you", "-p", "dir=/srv")
	if res.err != nil {
		t.Fatalf("plan error = %v\n%s", res.err, res.stderr)
	}
	for _, want := range []string{
		"(3 calls)",
		`hello.print  print`,
		`"hello YOU"`,
		`"WELCOME!"`,
		`"/srv/froyo-hello.txt"`,
	} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("plan output missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestPlan_JSON(t *testing.T) {
	dir := t.TempDir()
	writeSetup(t, dir, "web.yaml", `
_lib:
  print: never
web:
  print: "port ${port|22}"
  noop: {}
db:
  steps: [print]
  print: "${port}"
`)

	res := runCLI(t, "", "plan", "web", "--setups-dir", dir, "--json", "-p", "port=2222")
	if res.err != nil {
		t.Fatalf("plan error = %v\n%s", res.err, res.stderr)
	}

	var out struct {
		Setup string        `json:"setup"`
		Calls []engine.Call `json:"calls"`
	}
	if err := json.Unmarshal([]byte(res.stdout), &out); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, res.stdout)
	}

	var names []string
	for _, c := range out.Calls {
		names = append(names, c.Group+"."+c.Step+"="+c.Config.Text())
	}
	want := []string{"web.print=port 2222", "web.noop={}", "db.print=2222"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("calls = %v, want %v", names, want)
	}
	if out.Calls[2].Config.Kind().String() != "number" {
		t.Errorf("db.print config kind = %s, want number", out.Calls[2].Config.Kind())
	}
}

func TestRun_Execute(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")
	writeSetup(t, dir, "deploy.json", `{
  "app": {
    "steps": ["print", "file"],
    "print": "hi ${name}",
    "file": {"path": "${target}", "content": "%[str.upper:done]"}
  }
}`)

	metrics := filepath.Join(dir, "run.prom")
	events := filepath.Join(dir, "run.jsonl")
	res := runCLI(t, "", "run", "deploy", "--setups-dir", dir, "-x",
		"-p", "name=froyo", "-p", "target="+target,
		"--metrics-file", metrics, "--events-file", events)
	if res.err != nil {
		t.Fatalf("run error = %v\n%s", res.err, res.stderr)
	}

	if res.stdout != "hi froyo\n" {
		t.Errorf("stdout = %q", res.stdout)
	}
	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(content) != "DONE" {
		t.Errorf("file content = %q", content)
	}

	prom, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("metrics textfile missing: %v", err)
	}
	if !strings.Contains(string(prom), `froyo_setup_runs_completed_total{status="succeeded"} 1`) {
		t.Errorf("metrics textfile:\n%s", prom)
	}

	lines, err := os.ReadFile(events)
	if err != nil {
		t.Fatalf("events file missing: %v", err)
	}
	var types []string
	for _, line := range strings.Split(strings.TrimSpace(string(lines)), "\n") {
		var ev struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", line, err)
		}
		types = append(types, ev.Type)
	}
	wantTypes := []string{"run.started", "call.started", "call.completed", "call.started", "call.completed", "run.completed"}
	if !reflect.DeepEqual(types, wantTypes) {
		t.Errorf("events = %v, want %v", types, wantTypes)
	}
}

func TestRun_Confirmation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantRun bool
	}{
		{name: "confirmed", input: "y\n", wantRun: true},
		{name: "declined", input: "n\n"},
		{name: "uppercase", input: "Y\n"},
		{name: "no input", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			target := filepath.Join(dir, "out.txt")
			writeSetup(t, dir, "s.json", `{"g": {"file": {"path": "`+target+`", "content": "x"}}}`)

			res := runCLI(t, tt.input, "run", "s", "--setups-dir", dir)
			if res.err != nil {
				t.Fatalf("run error = %v", res.err)
			}
			if !strings.Contains(res.stdout, "Process queue? (y/n)") {
				t.Errorf("prompt missing from %q", res.stdout)
			}

			_, err := os.Stat(target)
			if ran := err == nil; ran != tt.wantRun {
				t.Errorf("file written = %v, want %v", ran, tt.wantRun)
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	writeSetup(t, dir, "s.json", `{
  "a": {"print": "a"},
  "b": {"steps": ["bogus"]},
  "c": {"steps": ["exec", "print"], "exec": {"command": "exit 3"}, "print": "never"},
  "d": {"file": {"path": "/etc/froyo-test", "content": "x"}}
}`)
	writeSetup(t, dir, "broken.json", `{"a": `)

	policyDir := t.TempDir()
	writeSetup(t, policyDir, "no-etc.rego", `# severity: error
package test.no_etc

import rego.v1

deny contains "no files below /etc" if {
	startswith(input.call.config.path, "/etc/")
}
`)

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{name: "missing setup", args: []string{"run", "nope"}, wantCode: engine.ErrCodeSetupNotFound},
		{name: "invalid setup", args: []string{"run", "broken"}, wantCode: engine.ErrCodeSetupInvalid},
		{name: "unknown step", args: []string{"run", "s", "-g", "b"}, wantCode: engine.ErrCodeUnknownStep},
		{name: "unknown group", args: []string{"run", "s", "-g", "z"}, wantCode: engine.ErrCodeUnknownGroup},
		{name: "group step mismatch", args: []string{"run", "s", "-g", "a", "-s", "print", "-s", "print"}, wantCode: engine.ErrCodeGroupStepMismatch},
		{name: "invalid payload", args: []string{"run", "s", "-p", "novalue"}, wantCode: engine.ErrCodeInput},
		{name: "invalid trace exporter", args: []string{"run", "s", "--trace", "zipkin"}, wantCode: engine.ErrCodeInput},
		{name: "call failed", args: []string{"run", "s", "-g", "c"}, wantCode: engine.ErrCodeCallFailed},
		{name: "policy denied", args: []string{"run", "s", "-g", "d", "--policy", policyDir}, wantCode: engine.ErrCodePolicyDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--setups-dir", dir, "-x")
			res := runCLI(t, "", args...)
			if res.err == nil {
				t.Fatalf("run succeeded, want %s\n%s", tt.wantCode, res.stdout)
			}
			if got := engine.ErrorCode(res.err); got != tt.wantCode {
				t.Errorf("ErrorCode() = %q, want %q (%v)", got, tt.wantCode, res.err)
			}
			if engine.ExitCode(res.err) != 1 {
				t.Errorf("ExitCode() = %d, want 1", engine.ExitCode(res.err))
			}
			if strings.Contains(res.stdout, "never") {
				t.Error("a call after the failing one ran")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	writeSetup(t, dir, "s.json", `{
  "a": {"steps": ["exec"], "exec": {"command": "id", "sudo": true}}
}`)

	res := runCLI(t, "", "validate", "s", "--setups-dir", dir)
	if res.err != nil {
		t.Fatalf("validate error = %v\n%s", res.err, res.stderr)
	}
	for _, want := range []string{
		"✓ stepmap:",
		"(built-in)",
		"✓ setup-file:",
		"(json, 1 groups)",
		"✓ queue: 1 calls",
		"! exec-sudo [warning] a.exec: step a.exec runs 'id' with sudo",
		"✓ policies: 2 evaluated, 1 warnings",
	} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("validate output missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestStepsAndFormatters(t *testing.T) {
	dir := t.TempDir()
	writeSetup(t, dir, "stepmap.json", `{"deploy": {"action": "exec.run", "config": "deploy"}}`)
	writeSetup(t, dir, "formatters.star", "def hello():\n    return \"hi\"\n")

	res := runCLI(t, "", "steps", "--setups-dir", dir)
	if res.err != nil {
		t.Fatalf("steps error = %v", res.err)
	}
	for _, want := range []string{"deploy", "ssh ", "ssh.exec", "config=upload"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("steps output missing %q:\n%s", want, res.stdout)
		}
	}

	res = runCLI(t, "", "formatters", "--setups-dir", dir, "--json")
	if res.err != nil {
		t.Fatalf("formatters error = %v", res.err)
	}
	var names []string
	if err := json.Unmarshal([]byte(res.stdout), &names); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	joined := "," + strings.Join(names, ",") + ","
	for _, want := range []string{"hello", "str.upper", "uuid.new"} {
		if !strings.Contains(joined, ","+want+",") {
			t.Errorf("formatters = %v, missing %s", names, want)
		}
	}
}

func TestSelectionFlags_Params(t *testing.T) {
	dir := t.TempDir()
	payloadFile := filepath.Join(dir, "payload.yaml")
	writeSetup(t, dir, "payload.yaml", "host: db1\nport: 5432\n")

	tests := []struct {
		name      string
		flags     selectionFlags
		wantSteps [][]string
		wantKeys  map[string]string
		wantErr   bool
	}{
		{
			name:     "empty",
			wantKeys: map[string]string{},
		},
		{
			name:      "steps per group",
			flags:     selectionFlags{groups: []string{"a", "b", "c"}, steps: []string{"x, y", "", "z"}},
			wantSteps: [][]string{{"x", "y"}, {}, {"z"}},
			wantKeys:  map[string]string{},
		},
		{
			name:     "flags override the file",
			flags:    selectionFlags{payload: []string{"host=web1", "tag=a=b"}, payloadFile: payloadFile},
			wantKeys: map[string]string{"host": "web1", "port": "5432", "tag": "a=b"},
		},
		{
			name:    "missing file",
			flags:   selectionFlags{payloadFile: filepath.Join(dir, "missing.yaml")},
			wantErr: true,
		},
		{
			name:    "invalid pair",
			flags:   selectionFlags{payload: []string{"=x"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := tt.flags.params()
			if tt.wantErr {
				if engine.ErrorCode(err) != engine.ErrCodeInput {
					t.Errorf("params() error = %v, want %s", err, engine.ErrCodeInput)
				}
				return
			}
			if err != nil {
				t.Fatalf("params() error = %v", err)
			}
			if !reflect.DeepEqual(params.Steps, tt.wantSteps) {
				t.Errorf("Steps = %#v, want %#v", params.Steps, tt.wantSteps)
			}
			got := map[string]string{}
			for k, v := range params.Payload {
				got[k] = v.Text()
			}
			if !reflect.DeepEqual(got, tt.wantKeys) {
				t.Errorf("Payload = %v, want %v", got, tt.wantKeys)
			}
		})
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_Replans(t *testing.T) {
	dir := t.TempDir()
	writeSetup(t, dir, "w.json", `{"g": {"print": "first"}}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr syncBuffer
	root := newRootCommand("test", "none", "today")
	root.SetArgs([]string{"watch", "w", "--setups-dir", dir, "--debounce", "20ms"})
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	waitFor := func(want string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(stdout.String(), want) {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %q in:\n%s\n%s", want, stdout.String(), stderr.String())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	waitFor(`"first"`)
	writeSetup(t, dir, "w.json", `{"g": {"print": "second"}}`)
	waitFor(`"second"`)
	if !strings.Contains(stdout.String(), "w.json changed") {
		t.Errorf("change notice missing:\n%s", stdout.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
