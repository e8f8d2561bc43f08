package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/furisto/scout/shared/resilience"
)

const openAIProviderName = "openai"

// OpenAIProvider implements Provider on top of the OpenAI Responses API.
type OpenAIProvider struct {
	client  openai.Client
	options *ProviderOptions
	metrics *providerMetrics
}

func NewOpenAIProvider(apiKey string, opts ...ProviderOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	options := DefaultProviderOptions(openAIProviderName)
	for _, opt := range opts {
		opt(options)
	}

	clientOptions := []option.RequestOption{option.WithAPIKey(apiKey)}
	if options.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(options.BaseURL))
	}

	return &OpenAIProvider{
		client:  openai.NewClient(clientOptions...),
		options: options,
		metrics: newProviderMetrics(options.Metrics),
	}, nil
}

func (p *OpenAIProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if req.Transcript == nil || req.Transcript.Len() == 0 {
		return nil, fmt.Errorf("transcript is required")
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(req.Model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: encodeOpenAIInput(req.Transcript),
		},
	}

	if tools := encodeOpenAITools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	if req.ReasoningEffort != "" {
		params.Reasoning = shared.ReasoningParam{
			Effort: shared.ReasoningEffort(req.ReasoningEffort),
		}
	}

	if len(req.Metadata) > 0 {
		metadata := shared.Metadata{}
		for key, value := range req.Metadata {
			metadata[key] = value
		}
		params.Metadata = metadata
	}

	resp, err := resilience.Do(ctx, p.options.RetryConfig, resilience.DoOptions{
		Breaker:   p.options.CircuitBreaker,
		Retryable: retryable,
		OnRetry: func(ctx context.Context, attempt uint, err error, nextDelay time.Duration) {
			if p.options.RetryCallback != nil {
				p.options.RetryCallback(ctx, err, nextDelay)
			}
		},
	}, func(ctx context.Context) (*responses.Response, error) {
		resp, err := p.client.Responses.New(ctx, params)
		if err != nil {
			return nil, p.translateError(err)
		}
		return resp, nil
	})
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			p.metrics.ObserveFailure(openAIProviderName, pe.Kind)
		}
		return nil, err
	}

	translated := translateOpenAIResponse(resp)
	p.metrics.ObserveInvocation(openAIProviderName, req.Model, translated.Usage)

	return translated, nil
}

func encodeOpenAIInput(transcript *Transcript) responses.ResponseInputParam {
	var items responses.ResponseInputParam

	message := func(role responses.EasyInputMessageRole, text string) responses.ResponseInputItemUnionParam {
		return responses.ResponseInputItemUnionParam{
			OfMessage: &responses.EasyInputMessageParam{
				Role: role,
				Content: responses.EasyInputMessageContentUnionParam{
					OfString: openai.String(text),
				},
			},
		}
	}

	for _, turn := range transcript.Turns() {
		switch turn := turn.(type) {
		case DeveloperTurn:
			items = append(items, message(responses.EasyInputMessageRoleDeveloper, turn.Text))
		case UserTurn:
			items = append(items, message(responses.EasyInputMessageRoleUser, turn.Text))
		case ModelTurn:
			for _, item := range turn.Items {
				switch item := item.(type) {
				case TextItem:
					items = append(items, message(responses.EasyInputMessageRoleAssistant, item.Text))
				case ToolCallItem:
					items = append(items, responses.ResponseInputItemUnionParam{
						OfFunctionCall: &responses.ResponseFunctionToolCallParam{
							CallID:    item.CallID,
							Name:      item.Name,
							Arguments: string(item.Arguments),
						},
					})
				}
			}
		case ToolResultTurn:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(turn.CallID, turn.Output))
		}
	}

	return items
}

func encodeOpenAITools(declarations []ToolDeclaration) []responses.ToolUnionParam {
	var tools []responses.ToolUnionParam
	for _, declaration := range declarations {
		tools = append(tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        declaration.Name,
				Description: openai.String(declaration.Description),
				Parameters:  shared.FunctionParameters(declaration.Parameters),
				Strict:      openai.Bool(declaration.Strict),
			},
		})
	}
	return tools
}

func translateOpenAIResponse(resp *responses.Response) *Response {
	translated := &Response{
		ID: resp.ID,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}

	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			message := item.AsMessage()
			for _, content := range message.Content {
				if content.Type == "output_text" && content.Text != "" {
					translated.Output = append(translated.Output, TextItem{Text: content.Text})
				}
			}
		case "function_call":
			call := item.AsFunctionCall()
			translated.Output = append(translated.Output, ToolCallItem{
				Name:      call.Name,
				CallID:    call.CallID,
				Arguments: []byte(call.Arguments),
			})
		}
	}

	return translated
}

func (p *OpenAIProvider) translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe := NewProviderError(openAIProviderName, kindForStatus(apiErr.StatusCode), err)
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(openAIProviderName, ProviderErrorKindTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewProviderError(openAIProviderName, ProviderErrorKindCanceled, err)
	}
	return NewProviderError(openAIProviderName, ProviderErrorKindUnknown, err)
}
