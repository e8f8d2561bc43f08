package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/furisto/scout/backend/sandbox"
	"github.com/furisto/scout/backend/tool"
)

const (
	defaultTimeoutSeconds = 120
	pythonOutputLimit     = 30000
	commandLineLimit      = 100

	noSandboxMessage = "Error: No sandbox instance available for this scan"
)

type ToolsOptions struct {
	Interpreter string
	Logger      *slog.Logger
}

func DefaultToolsOptions() *ToolsOptions {
	return &ToolsOptions{
		Interpreter: "python3",
		Logger:      slog.Default(),
	}
}

type ToolsOption func(*ToolsOptions)

func WithInterpreter(interpreter string) ToolsOption {
	return func(o *ToolsOptions) {
		o.Interpreter = interpreter
	}
}

func WithLogger(logger *slog.Logger) ToolsOption {
	return func(o *ToolsOptions) {
		o.Logger = logger
	}
}

// Tools exposes command and code execution against one sandbox session. The
// session may be nil, in which case every call reports the missing sandbox to
// the model instead of failing the dispatch.
type Tools struct {
	session sandbox.Session
	options *ToolsOptions
}

func NewTools(session sandbox.Session, opts ...ToolsOption) *Tools {
	options := DefaultToolsOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Tools{
		session: session,
		options: options,
	}
}

func (t *Tools) All() []tool.Tool {
	return []tool.Tool{t.RunCommand(), t.RunPython()}
}

type runCommandInput struct {
	Command string `json:"command" jsonschema:"description=Shell command to execute (e.g. \"ls -la\")."`
	Timeout int    `json:"timeout" jsonschema:"description=Max seconds to wait before timing out the command."`
}

func (t *Tools) RunCommand() tool.Tool {
	return tool.New(
		"sandbox_run_command",
		"Run a shell command inside an ephemeral sandbox and return stdout/stderr/exit code.",
		func(ctx context.Context, input runCommandInput) (string, error) {
			t.options.Logger.Info("running sandbox command", "command", input.Command)

			if t.session == nil {
				return noSandboxMessage, nil
			}

			result, err := t.session.RunCommand(ctx, input.Command, timeoutFor(input.Timeout), "root")
			if err != nil {
				return fmt.Sprintf("Failed to run command in sandbox: %v", err), nil
			}

			stdout := clipToMaxLines(result.Stdout, commandLineLimit)
			stderr := clipToMaxLines(result.Stderr, commandLineLimit)
			return formatResult(result.ExitCode, stdout, stderr), nil
		},
	)
}

type runPythonInput struct {
	PythonCode string `json:"python_code" jsonschema:"description=Python code to execute (e.g. print('Hello World'))."`
	Timeout    int    `json:"timeout" jsonschema:"description=Max seconds to wait before timing out the code execution."`
}

func (t *Tools) RunPython() tool.Tool {
	return tool.New(
		"sandbox_run_python",
		"Run Python code inside a sandbox and return stdout/stderr/exit code. If the output exceeds 30000 characters, output will be truncated before being returned to you.",
		func(ctx context.Context, input runPythonInput) (string, error) {
			t.options.Logger.Info("running sandbox python", "bytes", len(input.PythonCode))

			if t.session == nil {
				return noSandboxMessage, nil
			}

			scriptName := fmt.Sprintf("temp_script_%s.py", shortHex())
			if err := t.session.WriteFile(ctx, scriptName, []byte(input.PythonCode)); err != nil {
				return fmt.Sprintf("Failed to run Python code in sandbox: %v", err), nil
			}

			command := fmt.Sprintf("%s %s", t.options.Interpreter, scriptName)
			result, err := t.session.RunCommand(ctx, command, timeoutFor(input.Timeout), "root")
			if err != nil {
				return fmt.Sprintf("Failed to run Python code in sandbox: %v", err), nil
			}

			output := formatResult(result.ExitCode, result.Stdout, result.Stderr)
			if len(output) > pythonOutputLimit {
				output = output[:pythonOutputLimit] + "\n...[OUTPUT TRUNCATED - EXCEEDED 30000 CHARACTERS]"
			}
			return output, nil
		},
	)
}

func timeoutFor(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = defaultTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

func formatResult(exitCode int, stdout, stderr string) string {
	return fmt.Sprintf("Exit code: %d\n\nSTDOUT\n%s\n\nSTDERR\n%s", exitCode, stdout, stderr)
}

func clipToMaxLines(text string, maxLines int) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	visible := strings.Join(lines[:maxLines], "\n")
	return fmt.Sprintf("%s\n...[TRUNCATED %d more lines]", visible, len(lines)-maxLines)
}

func shortHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
