package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// CommandResult carries the outcome of a command run inside a sandbox.
// Timeouts surface as exit code 124 with any partial output preserved.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Session is an isolated execution environment for a single scan target.
type Session interface {
	ID() string
	WriteFile(ctx context.Context, path string, content []byte) error
	RunCommand(ctx context.Context, command string, timeout time.Duration, user string) (*CommandResult, error)
}

// TimeoutSetter is implemented by sessions whose default command timeout can
// be adjusted after creation.
type TimeoutSetter interface {
	SetTimeout(timeout time.Duration)
}

// Destroyer is implemented by sessions holding resources that outlive the
// process, such as workspace directories or remote instances.
type Destroyer interface {
	Destroy(ctx context.Context) error
}

type Factory func(ctx context.Context) (Session, error)

// FactoryFromEnv selects the sandbox backend from SANDBOX_PROVIDER. Unset
// means no sandbox at all; scans then run with the execution tools reporting
// the missing instance. Running commands on the host requires opting into
// "local" explicitly.
func FactoryFromEnv() (Factory, error) {
	provider := os.Getenv("SANDBOX_PROVIDER")
	switch provider {
	case "":
		slog.Default().Warn("SANDBOX_PROVIDER is not set, scans run without a sandbox")
		return nil, nil
	case "local":
		return func(ctx context.Context) (Session, error) {
			return NewLocalSession()
		}, nil
	case "remote":
		baseURL := os.Getenv("SANDBOX_API_URL")
		if baseURL == "" {
			return nil, fmt.Errorf("SANDBOX_API_URL is required for the remote sandbox provider")
		}
		token := os.Getenv("SANDBOX_API_TOKEN")
		client := NewRemoteClient(baseURL, token)
		return func(ctx context.Context) (Session, error) {
			return client.CreateSession(ctx)
		}, nil
	default:
		return nil, fmt.Errorf("unknown sandbox provider %q", provider)
	}
}
