package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	workspacePrefix     = "scout_sandbox_"
	defaultLocalTimeout = 120 * time.Second
)

// LocalSession runs commands on the host inside a throwaway workspace
// directory. It provides workspace isolation only, not privilege isolation;
// the user parameter of RunCommand is ignored.
type LocalSession struct {
	id        string
	fs        afero.Fs
	workspace string

	mu        sync.Mutex
	timeout   time.Duration
	destroyed bool
}

func NewLocalSession() (*LocalSession, error) {
	fs := afero.NewOsFs()
	workspace, err := afero.TempDir(fs, "", workspacePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox workspace: %w", err)
	}

	return &LocalSession{
		id:        uuid.NewString(),
		fs:        fs,
		workspace: workspace,
		timeout:   defaultLocalTimeout,
	}, nil
}

func (s *LocalSession) ID() string {
	return s.id
}

func (s *LocalSession) Workspace() string {
	return s.workspace
}

func (s *LocalSession) SetTimeout(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timeout > 0 {
		s.timeout = timeout
	}
}

func (s *LocalSession) WriteFile(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.workspace, target)
	}
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(s.fs, target, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *LocalSession) RunCommand(ctx context.Context, command string, timeout time.Duration, user string) (*CommandResult, error) {
	if timeout <= 0 {
		s.mu.Lock()
		timeout = s.timeout
		s.mu.Unlock()
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = s.workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.ExitCode = 124
		result.Stderr = appendLine(result.Stderr, fmt.Sprintf("command timed out after %s", timeout))
		return result, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to run command: %w", err)
	}

	return result, nil
}

// Destroy removes the workspace directory. It is idempotent and refuses to
// delete anything outside a sandbox-created path.
func (s *LocalSession) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil
	}
	if !strings.Contains(filepath.Base(s.workspace), workspacePrefix) {
		return fmt.Errorf("refusing to remove %s: not a sandbox workspace", s.workspace)
	}
	if err := s.fs.RemoveAll(s.workspace); err != nil {
		return fmt.Errorf("failed to remove sandbox workspace: %w", err)
	}
	s.destroyed = true
	return nil
}

func appendLine(existing, line string) string {
	if existing == "" {
		return line
	}
	if strings.HasSuffix(existing, "\n") {
		return existing + line
	}
	return existing + "\n" + line
}
