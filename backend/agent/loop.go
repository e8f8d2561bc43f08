package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/furisto/scout/backend/model"
	"github.com/furisto/scout/backend/tool"
	"github.com/furisto/scout/backend/usage"
)

// TerminationReason explains why a loop stopped.
type TerminationReason string

const (
	// ReasonNoToolCalls means the model produced a final answer without
	// requesting tools.
	ReasonNoToolCalls TerminationReason = "no_tool_calls"
	// ReasonRoundLimit means the round safety valve fired.
	ReasonRoundLimit TerminationReason = "round_limit"
)

type Result struct {
	Output string
	Reason TerminationReason
	Rounds int
}

type LoopOptions struct {
	MaxRounds       int
	ReasoningEffort string
	Metadata        map[string]string
	TargetURL       string
	Tracker         *usage.Tracker
	Logger          *slog.Logger
}

func DefaultLoopOptions(kind Kind) *LoopOptions {
	maxRounds := DefaultMainRounds
	switch kind {
	case KindSandbox:
		maxRounds = DefaultSandboxRounds
	case KindValidator:
		maxRounds = DefaultValidatorRounds
	}
	return &LoopOptions{
		MaxRounds:       maxRounds,
		ReasoningEffort: "high",
		Logger:          slog.Default(),
	}
}

type LoopOption func(*LoopOptions)

// WithMaxRounds sets the round safety valve. Zero means unlimited.
func WithMaxRounds(maxRounds int) LoopOption {
	return func(o *LoopOptions) {
		o.MaxRounds = maxRounds
	}
}

func WithReasoningEffort(effort string) LoopOption {
	return func(o *LoopOptions) {
		o.ReasoningEffort = effort
	}
}

func WithMetadata(metadata map[string]string) LoopOption {
	return func(o *LoopOptions) {
		o.Metadata = metadata
	}
}

func WithTargetURL(targetURL string) LoopOption {
	return func(o *LoopOptions) {
		o.TargetURL = targetURL
	}
}

func WithTracker(tracker *usage.Tracker) LoopOption {
	return func(o *LoopOptions) {
		o.Tracker = tracker
	}
}

func WithLogger(logger *slog.Logger) LoopOption {
	return func(o *LoopOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Loop drives one agent conversation: query the model, execute every
// requested tool call concurrently, feed the results back, repeat until the
// model answers without tools or the round limit is hit.
type Loop struct {
	kind       Kind
	provider   model.Provider
	modelID    string
	toolbox    *tool.Toolbox
	dispatcher *tool.Dispatcher
	options    *LoopOptions
}

func NewLoop(kind Kind, provider model.Provider, modelID string, toolbox *tool.Toolbox, opts ...LoopOption) *Loop {
	options := DefaultLoopOptions(kind)
	for _, opt := range opts {
		opt(options)
	}

	return &Loop{
		kind:       kind,
		provider:   provider,
		modelID:    modelID,
		toolbox:    toolbox,
		dispatcher: tool.NewDispatcher(toolbox, options.Logger),
		options:    options,
	}
}

func (l *Loop) Run(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	transcript := model.NewTranscript(systemPrompt, userPrompt)
	declarations := l.toolbox.Declarations()

	rounds := 0
	for {
		response, err := l.provider.Invoke(ctx, &model.Request{
			Model:           l.modelID,
			Transcript:      transcript,
			Tools:           declarations,
			ReasoningEffort: l.options.ReasoningEffort,
			Metadata:        l.metadata(),
		})
		if err != nil {
			return nil, fmt.Errorf("%s model invocation failed: %w", l.kind, err)
		}

		l.recordUsage(response.Usage)

		calls := response.ToolCalls()
		if len(calls) == 0 {
			l.options.Logger.Info("agent finished",
				"agent", string(l.kind),
				"rounds", rounds,
				"response_id", response.ID,
			)
			return &Result{
				Output: response.Text(),
				Reason: ReasonNoToolCalls,
				Rounds: rounds,
			}, nil
		}

		transcript.Append(model.ModelTurn{Items: response.Output})

		l.options.Logger.Debug("dispatching tool calls",
			"agent", string(l.kind),
			"count", len(calls),
			"round", rounds+1,
		)

		// Calls run concurrently but results are appended in call order so
		// the transcript stays deterministic.
		results := make([]string, len(calls))
		var wg sync.WaitGroup
		for i, call := range calls {
			wg.Add(1)
			go func(i int, call model.ToolCallItem) {
				defer wg.Done()
				results[i] = l.dispatcher.Dispatch(ctx, call.Name, call.Arguments)
			}(i, call)
		}
		wg.Wait()

		for i, call := range calls {
			transcript.Append(model.ToolResultTurn{
				CallID: call.CallID,
				Output: results[i],
			})
		}

		rounds++
		if l.options.MaxRounds > 0 && rounds >= l.options.MaxRounds {
			l.options.Logger.Warn("agent hit round limit",
				"agent", string(l.kind),
				"max_rounds", l.options.MaxRounds,
			)
			return &Result{
				Output: fmt.Sprintf("[%s] Reached max rounds limit: %d", l.kind, l.options.MaxRounds),
				Reason: ReasonRoundLimit,
				Rounds: rounds,
			}, nil
		}
	}
}

func (l *Loop) metadata() map[string]string {
	if len(l.options.Metadata) > 0 {
		return l.options.Metadata
	}
	return map[string]string{"name": string(l.kind)}
}

func (l *Loop) recordUsage(u model.Usage) {
	if l.options.Tracker == nil {
		return
	}
	agentType := usage.SandboxAgent
	if l.kind == KindMain {
		agentType = usage.MainAgent
	}
	l.options.Tracker.Record(agentType, l.options.TargetURL, u)
}
