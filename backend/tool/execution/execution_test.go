package execution

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/furisto/scout/backend/sandbox"
)

type fakeSession struct {
	result *sandbox.CommandResult

	files       map[string]string
	lastCommand string
	lastTimeout time.Duration
	lastUser    string
}

func (s *fakeSession) ID() string {
	return "fake"
}

func (s *fakeSession) WriteFile(ctx context.Context, path string, content []byte) error {
	if s.files == nil {
		s.files = map[string]string{}
	}
	s.files[path] = string(content)
	return nil
}

func (s *fakeSession) RunCommand(ctx context.Context, command string, timeout time.Duration, user string) (*sandbox.CommandResult, error) {
	s.lastCommand = command
	s.lastTimeout = timeout
	s.lastUser = user
	return s.result, nil
}

func invoke(t *testing.T, tools *Tools, name, args string) string {
	t.Helper()
	for _, candidate := range tools.All() {
		if candidate.Name == name {
			output, err := candidate.Handler(context.Background(), json.RawMessage(args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			return output
		}
	}
	t.Fatalf("tool %s not found", name)
	return ""
}

func TestRunCommandFormatsResult(t *testing.T) {
	t.Parallel()

	session := &fakeSession{result: &sandbox.CommandResult{ExitCode: 0, Stdout: "hi\n", Stderr: ""}}
	tools := NewTools(session)

	got := invoke(t, tools, "sandbox_run_command", `{"command":"echo hi","timeout":0}`)
	want := "Exit code: 0\n\nSTDOUT\nhi\n\nSTDERR\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if session.lastUser != "root" {
		t.Errorf("expected command to run as root, got %q", session.lastUser)
	}
	if session.lastTimeout != 120*time.Second {
		t.Errorf("expected default 120s timeout, got %s", session.lastTimeout)
	}
}

func TestRunCommandClipsLongStreams(t *testing.T) {
	t.Parallel()

	lines := make([]string, 150)
	for i := range lines {
		lines[i] = "line"
	}
	session := &fakeSession{result: &sandbox.CommandResult{
		ExitCode: 1,
		Stdout:   strings.Join(lines, "\n"),
	}}

	got := invoke(t, NewTools(session), "sandbox_run_command", `{"command":"noisy","timeout":30}`)

	if !strings.Contains(got, "...[TRUNCATED 50 more lines]") {
		t.Errorf("expected truncation marker in output, got %q", got)
	}
	if strings.Count(got, "line\n") != 100 {
		t.Errorf("expected 100 visible lines, got %d", strings.Count(got, "line\n"))
	}
	if session.lastTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", session.lastTimeout)
	}
}

func TestRunCommandWithoutSandbox(t *testing.T) {
	t.Parallel()

	got := invoke(t, NewTools(nil), "sandbox_run_command", `{"command":"ls","timeout":0}`)
	if got != "Error: No sandbox instance available for this scan" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestRunPythonWritesScriptAndTruncates(t *testing.T) {
	t.Parallel()

	session := &fakeSession{result: &sandbox.CommandResult{
		ExitCode: 0,
		Stdout:   strings.Repeat("x", 40000),
	}}
	tools := NewTools(session)

	got := invoke(t, tools, "sandbox_run_python", `{"python_code":"print('x' * 40000)","timeout":0}`)

	if len(got) != 30000+len("\n...[OUTPUT TRUNCATED - EXCEEDED 30000 CHARACTERS]") {
		t.Errorf("unexpected truncated length %d", len(got))
	}
	if !strings.HasSuffix(got, "\n...[OUTPUT TRUNCATED - EXCEEDED 30000 CHARACTERS]") {
		t.Errorf("expected truncation suffix, got tail %q", got[len(got)-60:])
	}

	if len(session.files) != 1 {
		t.Fatalf("expected one script file, got %d", len(session.files))
	}
	for path, content := range session.files {
		if !strings.HasPrefix(path, "temp_script_") || !strings.HasSuffix(path, ".py") {
			t.Errorf("unexpected script name %q", path)
		}
		if content != "print('x' * 40000)" {
			t.Errorf("unexpected script content %q", content)
		}
		if session.lastCommand != "python3 "+path {
			t.Errorf("expected interpreter invocation on %q, got %q", path, session.lastCommand)
		}
	}
}

func TestRunPythonCustomInterpreter(t *testing.T) {
	t.Parallel()

	session := &fakeSession{result: &sandbox.CommandResult{ExitCode: 0, Stdout: "ok"}}
	tools := NewTools(session, WithInterpreter("/usr/bin/python3.12"))

	invoke(t, tools, "sandbox_run_python", `{"python_code":"print('ok')","timeout":0}`)

	if !strings.HasPrefix(session.lastCommand, "/usr/bin/python3.12 temp_script_") {
		t.Errorf("unexpected interpreter command %q", session.lastCommand)
	}
}
