package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidwall/gjson"

	"github.com/furisto/scout/backend/model"
	"github.com/furisto/scout/backend/tool"
	"github.com/furisto/scout/backend/usage"
)

const defaultSandboxSystemPrompt = "You are an agent that autonomously interacts with an isolated sandbox using two tools: " +
	"`sandbox_run_command` (bash) and `sandbox_run_python` (Python). Keep responses within 30,000 " +
	"characters; chunk large outputs. Think step-by-step before taking actions."

const defaultValidatorSystemPrompt = "You validate security PoCs inside an isolated sandbox using two tools: " +
	"`sandbox_run_command` (bash) and `sandbox_run_python` (Python). Your goal is to: " +
	"(1) Reproduce the PoC minimally and safely, (2) Capture evidence (stdout, file diffs, HTTP responses), " +
	"(3) Decide if the PoC reliably demonstrates a real vulnerability with impact, (4) Provide a concise verdict. " +
	"Always think step-by-step before actions. Keep outputs within 30,000 characters and chunk large outputs. " +
	"Avoid destructive actions unless explicitly required for validation."

// SubagentConfig carries the shared pieces every nested loop needs. The
// execution toolbox must contain only the low-level sandbox tools so nested
// agents cannot recurse into further nesting.
type SubagentConfig struct {
	Provider       model.Provider
	Model          string
	ExecutionTools *tool.Toolbox
	Tracker        *usage.Tracker
	TargetURL      string
	Logger         *slog.Logger
}

// SandboxAgentTool exposes a nested sandbox-only agent loop as a tool of the
// main agent.
func SandboxAgentTool(cfg SubagentConfig) tool.Tool {
	return subagentTool(
		cfg,
		KindSandbox,
		"Nested agent loop that uses only sandbox execution tools to fulfill the provided instruction. "+
			"Returns the final textual response when the model stops requesting tools or when max_rounds is hit.",
		"The instruction for the sandbox agent to execute",
		DefaultSandboxRounds,
		envOr("SANDBOX_SYSTEM_PROMPT", defaultSandboxSystemPrompt),
	)
}

// ValidatorAgentTool exposes a nested loop specialized for reproducing and
// judging proof-of-concept findings.
func ValidatorAgentTool(cfg SubagentConfig) tool.Tool {
	return subagentTool(
		cfg,
		KindValidator,
		"Agent loop specialized for validating Proofs-of-Concept (PoCs) in the sandbox. "+
			"Use only sandbox tools, keep outputs concise, and return a clear verdict.",
		"Validation instruction that includes the PoC and expected outcome",
		DefaultValidatorRounds,
		envOr("VALIDATOR_SYSTEM_PROMPT", defaultValidatorSystemPrompt),
	)
}

func subagentTool(cfg SubagentConfig, kind Kind, description, instructionDoc string, defaultRounds int, systemPrompt string) tool.Tool {
	parameters := tool.ObjectSchema(map[string]any{
		"instruction": tool.StringProperty(instructionDoc),
		"max_rounds":  tool.IntegerProperty(fmt.Sprintf("Maximum number of execution rounds (default: %d)", defaultRounds)),
	}, "instruction", "max_rounds")

	handler := func(ctx context.Context, args json.RawMessage) (string, error) {
		instruction, maxRounds := decodeSubagentArgs(args, defaultRounds)
		if instruction == "" {
			return "", fmt.Errorf("instruction is required")
		}

		loop := NewLoop(kind, cfg.Provider, cfg.Model, cfg.ExecutionTools,
			WithMaxRounds(maxRounds),
			WithTracker(cfg.Tracker),
			WithTargetURL(cfg.TargetURL),
			WithMetadata(map[string]string{"name": string(kind)}),
			WithLogger(cfg.Logger),
		)

		result, err := loop.Run(ctx, systemPrompt, instruction)
		if err != nil {
			return "", err
		}
		return result.Output, nil
	}

	return tool.NewRaw(string(kind), description, parameters, handler)
}

// decodeSubagentArgs accepts the legacy "input" argument as an alias for
// "instruction".
func decodeSubagentArgs(args json.RawMessage, defaultRounds int) (string, int) {
	instruction := gjson.GetBytes(args, "instruction").String()
	if instruction == "" {
		instruction = gjson.GetBytes(args, "input").String()
	}

	maxRounds := defaultRounds
	if rounds := gjson.GetBytes(args, "max_rounds"); rounds.Exists() && rounds.Int() > 0 {
		maxRounds = int(rounds.Int())
	}

	return instruction, maxRounds
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
