package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RemoteClient talks to a sandbox orchestration service over HTTP. Each
// session maps to one remote instance.
type RemoteClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewRemoteClient(baseURL, token string) *RemoteClient {
	return &RemoteClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *RemoteClient) CreateSession(ctx context.Context) (*RemoteSession, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/sandboxes", map[string]any{}, &created); err != nil {
		return nil, fmt.Errorf("failed to create remote sandbox: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("remote sandbox service returned an empty instance id")
	}

	return &RemoteSession{
		client:  c,
		id:      created.ID,
		timeout: defaultLocalTimeout,
	}, nil
}

func (c *RemoteClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to sandbox service failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read sandbox service response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sandbox service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode sandbox service response: %w", err)
		}
	}
	return nil
}

// RemoteSession is a Session backed by a remote sandbox instance.
type RemoteSession struct {
	client *RemoteClient
	id     string

	mu        sync.Mutex
	timeout   time.Duration
	destroyed bool
}

func (s *RemoteSession) ID() string {
	return s.id
}

func (s *RemoteSession) SetTimeout(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timeout > 0 {
		s.timeout = timeout
	}
}

func (s *RemoteSession) WriteFile(ctx context.Context, path string, content []byte) error {
	body := map[string]any{
		"path":    path,
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if err := s.client.do(ctx, http.MethodPost, "/sandboxes/"+s.id+"/files", body, nil); err != nil {
		return fmt.Errorf("failed to write %s to remote sandbox: %w", path, err)
	}
	return nil
}

func (s *RemoteSession) RunCommand(ctx context.Context, command string, timeout time.Duration, user string) (*CommandResult, error) {
	if timeout <= 0 {
		s.mu.Lock()
		timeout = s.timeout
		s.mu.Unlock()
	}

	body := map[string]any{
		"command":         command,
		"timeout_seconds": int(timeout / time.Second),
	}
	if user != "" {
		body["user"] = user
	}

	var result struct {
		ExitCode int    `json:"exit_code"`
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
	}
	if err := s.client.do(ctx, http.MethodPost, "/sandboxes/"+s.id+"/exec", body, &result); err != nil {
		return nil, fmt.Errorf("failed to run command in remote sandbox: %w", err)
	}

	return &CommandResult{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}, nil
}

func (s *RemoteSession) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil
	}
	if err := s.client.do(ctx, http.MethodDelete, "/sandboxes/"+s.id, nil, nil); err != nil {
		return fmt.Errorf("failed to destroy remote sandbox: %w", err)
	}
	s.destroyed = true
	return nil
}
