package usage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/furisto/scout/backend/model"
)

// AgentType labels which loop produced a model invocation. Validator usage is
// booked under the sandbox agent because the validator shares its sandbox.
type AgentType string

const (
	MainAgent    AgentType = "main_agent"
	SandboxAgent AgentType = "sandbox_agent"
)

type Entry struct {
	Timestamp time.Time   `json:"timestamp"`
	TargetURL string      `json:"target_url"`
	AgentType AgentType   `json:"agent_type"`
	Usage     model.Usage `json:"usage"`
}

type Summary struct {
	ScanDuration      string  `json:"scan_duration"`
	MainAgentCalls    int     `json:"main_agent_calls"`
	SandboxAgentCalls int     `json:"sandbox_agent_calls"`
	TotalCalls        int     `json:"total_calls"`
	MainAgentUsage    []Entry `json:"main_agent_usage"`
	SandboxAgentUsage []Entry `json:"sandbox_agent_usage"`
}

// Tracker accumulates per-invocation usage for one scan. It is safe for
// concurrent use; the nested agent loops record into the same tracker as the
// main loop.
type Tracker struct {
	mu        sync.Mutex
	logger    *slog.Logger
	startTime time.Time
	main      []Entry
	sandbox   []Entry
}

func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:    logger,
		startTime: time.Now().UTC(),
	}
}

func (t *Tracker) Record(agentType AgentType, targetURL string, usage model.Usage) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		TargetURL: targetURL,
		AgentType: agentType,
		Usage:     usage,
	}

	t.mu.Lock()
	switch agentType {
	case MainAgent:
		t.main = append(t.main, entry)
	default:
		t.sandbox = append(t.sandbox, entry)
	}
	t.mu.Unlock()

	t.logger.Info("recorded model usage",
		"agent", string(agentType),
		"target", targetURL,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)
}

func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	main := make([]Entry, len(t.main))
	copy(main, t.main)
	sandbox := make([]Entry, len(t.sandbox))
	copy(sandbox, t.sandbox)

	return Summary{
		ScanDuration:      time.Since(t.startTime).String(),
		MainAgentCalls:    len(main),
		SandboxAgentCalls: len(sandbox),
		TotalCalls:        len(main) + len(sandbox),
		MainAgentUsage:    main,
		SandboxAgentUsage: sandbox,
	}
}

// Save writes the summary to <prefix>usage_log_<UTC timestamp>.json and
// returns the filename.
func (t *Tracker) Save(fs afero.Fs, prefix string) (string, error) {
	filename := fmt.Sprintf("%susage_log_%s.json", prefix, time.Now().UTC().Format("20060102_150405"))

	encoded, err := json.MarshalIndent(t.Summary(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode usage summary: %w", err)
	}
	if err := afero.WriteFile(fs, filename, encoded, 0o644); err != nil {
		return "", fmt.Errorf("failed to save usage log: %w", err)
	}

	t.logger.Info("usage data saved", "file", filename)
	return filename, nil
}
