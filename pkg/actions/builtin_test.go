package actions

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/transports/ssh"
)

type fakeTransport struct {
	dialed    *ssh.Config
	commands  []string
	uploads   []string
	sudoPass  string
	connected bool
	closed    bool
	runErr    error
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeTransport) Run(ctx context.Context, cmd string) (string, string, error) {
	f.commands = append(f.commands, cmd)
	return "ran " + cmd, "", f.runErr
}

func (f *fakeTransport) RunWithSudo(ctx context.Context, cmd string, sudoPassword string) (string, string, error) {
	f.sudoPass = sudoPassword
	f.commands = append(f.commands, "sudo "+cmd)
	return "", "", f.runErr
}

func (f *fakeTransport) Upload(ctx context.Context, localPath, remotePath string, mode uint32) (*ssh.FileTransferResult, error) {
	f.uploads = append(f.uploads, localPath+"->"+remotePath)
	return &ssh.FileTransferResult{}, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

type harness struct {
	registry  *Registry
	stdout    *bytes.Buffer
	transport *fakeTransport
}

func newHarness() *harness {
	h := &harness{stdout: &bytes.Buffer{}, transport: &fakeTransport{}}
	h.registry = DefaultRegistry(Options{
		Stdout: h.stdout,
		Stderr: &bytes.Buffer{},
		Logger: zerolog.Nop(),
		Dial: func(cfg *ssh.Config, logger zerolog.Logger) (ssh.Transport, error) {
			h.transport.dialed = cfg
			return h.transport, nil
		},
	})
	return h
}

func (h *harness) invoke(t *testing.T, name, cfg string) error {
	t.Helper()
	v, err := config.DecodeJSON([]byte(cfg))
	if err != nil {
		t.Fatalf("bad test config %s: %v", cfg, err)
	}
	action, err := h.registry.Get(name)
	if err != nil {
		t.Fatal(err)
	}
	return action.Invoke(context.Background(), v).Wait(context.Background())
}

func TestPrint(t *testing.T) {
	h := newHarness()

	if err := h.invoke(t, "print", `"hello"`); err != nil {
		t.Fatal(err)
	}
	if err := h.invoke(t, "print", `{"name": "web", "ports": [80, 443]}`); err != nil {
		t.Fatal(err)
	}

	want := "hello\nname: web\nports:\n  - 80\n  - 443\n"
	if h.stdout.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", h.stdout.String(), want)
	}
}

func TestNoop(t *testing.T) {
	if err := newHarness().invoke(t, "noop", `null`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDelay(t *testing.T) {
	h := newHarness()

	if err := h.invoke(t, "delay", `{"duration": "5ms"}`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, cfg := range []string{`{}`, `{"duration": "soon"}`, `"5ms"`} {
		if err := h.invoke(t, "delay", cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", cfg, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	action, _ := h.registry.Get("delay")
	err := action.Invoke(ctx, config.MappingValue(mappingOf("duration", config.String("1h")))).Wait(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func mappingOf(kv ...any) *config.Mapping {
	m := config.NewMapping()
	for i := 0; i < len(kv); i += 2 {
		m.Set(kv[i].(string), kv[i+1].(config.Value))
	}
	return m
}

func TestExecRun(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		cfg        string
		wantStdout string
		wantErr    string
	}{
		{name: "shell command", cfg: `{"command": "echo hello"}`, wantStdout: "hello\n"},
		{name: "program with args", cfg: `{"command": "printf", "args": ["%s-%s", "a", "b"]}`, wantStdout: "a-b"},
		{name: "environment", cfg: `{"command": "echo $FROYO_GREETING", "env": {"FROYO_GREETING": "hi"}}`, wantStdout: "hi\n"},
		{name: "working directory", cfg: `{"command": "pwd", "workdir": "` + dir + `"}`, wantStdout: dir + "\n"},
		{name: "non-zero exit", cfg: `{"command": "echo nope >&2; exit 3"}`, wantErr: "exited with code 3: nope"},
		{name: "missing command", cfg: `{"args": ["x"]}`, wantErr: "invalid action config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			err := h.invoke(t, "exec.run", tt.cfg)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if h.stdout.String() != tt.wantStdout {
				t.Errorf("expected stdout %q, got %q", tt.wantStdout, h.stdout.String())
			}
		})
	}
}

func TestFileWrite(t *testing.T) {
	h := newHarness()
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "app.conf")

	if err := h.invoke(t, "file.write", `{"path": "`+path+`", "content": "v1", "mode": "0600"}`); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
	}

	if err := h.invoke(t, "file.write", `{"path": "`+path+`", "content": "v2", "backup": true}`); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "v2" {
		t.Errorf("unexpected content %q", data)
	}
	if data, _ := os.ReadFile(path + ".bak"); string(data) != "v1" {
		t.Errorf("unexpected backup content %q", data)
	}

	missing := filepath.Join(dir, "missing.conf")
	if err := h.invoke(t, "file.write", `{"path": "`+missing+`", "create": false}`); err == nil {
		t.Error("expected error when create=false and the file is missing")
	}
	if err := h.invoke(t, "file.write", `{"path": "`+missing+`", "mode": "rw"}`); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for a bad mode, got %v", err)
	}
	if err := h.invoke(t, "file.write", `{"content": "x"}`); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without a path, got %v", err)
	}
}

func TestSSHExec(t *testing.T) {
	h := newHarness()

	err := h.invoke(t, "ssh.exec", `{
		"host": "web1", "port": 2222, "user": "deploy", "password": "pw",
		"strict_host_key_checking": false, "timeout": "5s",
		"command": "uptime"
	}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dialed := h.transport.dialed
	if dialed.Host != "web1" || dialed.Port != 2222 || dialed.User != "deploy" {
		t.Errorf("unexpected dial config %+v", dialed)
	}
	if dialed.AuthMethod != ssh.AuthMethodPassword || dialed.StrictHostKeyChecking {
		t.Errorf("unexpected auth settings %+v", dialed)
	}
	if len(h.transport.commands) != 1 || h.transport.commands[0] != "uptime" {
		t.Errorf("unexpected commands %v", h.transport.commands)
	}
	if !h.transport.connected || !h.transport.closed {
		t.Error("transport should be connected and closed")
	}
	if h.stdout.String() != "ran uptime\n" {
		t.Errorf("unexpected stdout %q", h.stdout.String())
	}
}

func TestSSHExec_Sudo(t *testing.T) {
	h := newHarness()

	err := h.invoke(t, "ssh.exec", `{"host": "web1", "user": "deploy", "private_key": "/keys/id", "command": "reboot", "sudo": true, "sudo_password": "pw"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.transport.commands[0] != "sudo reboot" || h.transport.sudoPass != "pw" {
		t.Errorf("unexpected sudo call %v %q", h.transport.commands, h.transport.sudoPass)
	}
	if h.transport.dialed.AuthMethod != ssh.AuthMethodKey || !h.transport.dialed.StrictHostKeyChecking {
		t.Errorf("expected key auth with strict checking, got %+v", h.transport.dialed)
	}
}

func TestSSHExec_Errors(t *testing.T) {
	h := newHarness()
	h.transport.runErr = errors.New("exit 1")

	if err := h.invoke(t, "ssh.exec", `{"host": "web1", "user": "u", "password": "p", "command": "false"}`); err == nil {
		t.Error("expected the remote failure to surface")
	}
	if !h.transport.closed {
		t.Error("transport should be closed after a failure")
	}

	for _, cfg := range []string{
		`{"user": "u", "command": "x"}`,
		`{"host": "h", "user": "u"}`,
		`{"host": "h", "user": "u", "command": "x", "port": 70000}`,
		`{"host": "h", "user": "u", "command": "x", "timeout": "later"}`,
	} {
		if err := h.invoke(t, "ssh.exec", cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", cfg, err)
		}
	}
}

func TestSSHUpload(t *testing.T) {
	h := newHarness()

	err := h.invoke(t, "ssh.upload", `{"host": "web1", "user": "u", "password": "p", "source": "app.conf", "destination": "/etc/app.conf", "mode": "0644"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.transport.uploads) != 1 || h.transport.uploads[0] != "app.conf->/etc/app.conf" {
		t.Errorf("unexpected uploads %v", h.transport.uploads)
	}

	if err := h.invoke(t, "ssh.upload", `{"host": "web1", "user": "u", "source": "a"}`); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
