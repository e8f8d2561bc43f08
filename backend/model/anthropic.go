package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/furisto/scout/shared/resilience"
)

const (
	anthropicProviderName = "anthropic"

	// Completion cap for Messages API requests; the Responses API needs no
	// equivalent, so this stays an Anthropic adapter detail.
	anthropicMaxTokens = 16384

	anthropicThinkingBudget = 4096
)

// AnthropicProvider implements Provider on top of the Anthropic Messages API.
// Developer turns map to system blocks, tool results to tool_result blocks in
// the following user message.
type AnthropicProvider struct {
	client  anthropic.Client
	options *ProviderOptions
	metrics *providerMetrics
}

func NewAnthropicProvider(apiKey string, opts ...ProviderOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	options := DefaultProviderOptions(anthropicProviderName)
	for _, opt := range opts {
		opt(options)
	}

	clientOptions := []option.RequestOption{option.WithAPIKey(apiKey)}
	if options.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(options.BaseURL))
	}

	return &AnthropicProvider{
		client:  anthropic.NewClient(clientOptions...),
		options: options,
		metrics: newProviderMetrics(options.Metrics),
	}, nil
}

func (p *AnthropicProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if req.Transcript == nil || req.Transcript.Len() == 0 {
		return nil, fmt.Errorf("transcript is required")
	}

	messages, system := encodeAnthropicMessages(req.Transcript)
	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one user message is required")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if tools := encodeAnthropicTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if req.ReasoningEffort == "high" {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(anthropicThinkingBudget)
	}
	if name := req.Metadata["name"]; name != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(name)}
	}

	msg, err := resilience.Do(ctx, p.options.RetryConfig, resilience.DoOptions{
		Breaker:   p.options.CircuitBreaker,
		Retryable: retryable,
		OnRetry: func(ctx context.Context, attempt uint, err error, nextDelay time.Duration) {
			if p.options.RetryCallback != nil {
				p.options.RetryCallback(ctx, err, nextDelay)
			}
		},
	}, func(ctx context.Context) (*anthropic.Message, error) {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return nil, p.translateError(err)
		}
		return msg, nil
	})
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			p.metrics.ObserveFailure(anthropicProviderName, pe.Kind)
		}
		return nil, err
	}

	translated := translateAnthropicResponse(msg)
	p.metrics.ObserveInvocation(anthropicProviderName, req.Model, translated.Usage)

	return translated, nil
}

func encodeAnthropicMessages(transcript *Transcript) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var messages []anthropic.MessageParam
	var system []anthropic.TextBlockParam

	// Consecutive tool results collapse into one user message so every
	// tool_use block is answered in the turn that follows it.
	var pendingResults []anthropic.ContentBlockParamUnion
	flushResults := func() {
		if len(pendingResults) == 0 {
			return
		}
		messages = append(messages, anthropic.NewUserMessage(pendingResults...))
		pendingResults = nil
	}

	for _, turn := range transcript.Turns() {
		switch turn := turn.(type) {
		case DeveloperTurn:
			flushResults()
			system = append(system, anthropic.TextBlockParam{Text: turn.Text})
		case UserTurn:
			flushResults()
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
		case ModelTurn:
			flushResults()
			var blocks []anthropic.ContentBlockParamUnion
			for _, item := range turn.Items {
				switch item := item.(type) {
				case TextItem:
					if item.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(item.Text))
					}
				case ToolCallItem:
					blocks = append(blocks, anthropic.NewToolUseBlock(item.CallID, item.Arguments, item.Name))
				case ThinkingItem:
					// With thinking enabled the API rejects tool calls whose
					// assistant turn is replayed without its signed thinking
					// block.
					blocks = append(blocks, anthropic.NewThinkingBlock(item.Signature, item.Text))
				case RedactedThinkingItem:
					blocks = append(blocks, anthropic.NewRedactedThinkingBlock(item.Data))
				}
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		case ToolResultTurn:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(turn.CallID, turn.Output, false))
		}
	}
	flushResults()

	return messages, system
}

func encodeAnthropicTools(declarations []ToolDeclaration) []anthropic.ToolUnionParam {
	var tools []anthropic.ToolUnionParam
	for _, declaration := range declarations {
		schema := anthropic.ToolInputSchemaParam{ExtraFields: declaration.Parameters}
		tool := anthropic.ToolUnionParamOfTool(schema, declaration.Name)
		if tool.OfTool != nil {
			tool.OfTool.Description = anthropic.String(declaration.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

func translateAnthropicResponse(msg *anthropic.Message) *Response {
	translated := &Response{
		ID: msg.ID,
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			TotalTokens:  msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				translated.Output = append(translated.Output, TextItem{Text: block.Text})
			}
		case "tool_use":
			translated.Output = append(translated.Output, ToolCallItem{
				Name:      block.Name,
				CallID:    block.ID,
				Arguments: block.Input,
			})
		case "thinking":
			translated.Output = append(translated.Output, ThinkingItem{
				Text:      block.Thinking,
				Signature: block.Signature,
			})
		case "redacted_thinking":
			translated.Output = append(translated.Output, RedactedThinkingItem{Data: block.Data})
		}
	}

	return translated
}

func (p *AnthropicProvider) translateError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewProviderError(anthropicProviderName, kindForStatus(apiErr.StatusCode), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(anthropicProviderName, ProviderErrorKindTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewProviderError(anthropicProviderName, ProviderErrorKindCanceled, err)
	}
	return NewProviderError(anthropicProviderName, ProviderErrorKindUnknown, err)
}
