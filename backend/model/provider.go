package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/furisto/scout/shared/resilience"
	"github.com/prometheus/client_golang/prometheus"
)

// ToolDeclaration describes a tool the model may call. Parameters is a JSON
// Schema object with scalar-typed properties only; every declared parameter
// is required and additional properties are rejected.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
	Strict      bool
}

type Request struct {
	Model           string
	Transcript      *Transcript
	Tools           []ToolDeclaration
	ReasoningEffort string
	Metadata        map[string]string
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

type Response struct {
	ID     string
	Output []OutputItem
	Usage  Usage
}

// ToolCalls extracts the tool-call items of the output batch in response
// order.
func (r *Response) ToolCalls() []ToolCallItem {
	var calls []ToolCallItem
	for _, item := range r.Output {
		if call, ok := item.(ToolCallItem); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// Text concatenates all text items of the output batch in response order.
func (r *Response) Text() string {
	var sb strings.Builder
	for _, item := range r.Output {
		if text, ok := item.(TextItem); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

type Provider interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

type ProviderOptions struct {
	BaseURL        string
	RetryConfig    *resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreaker
	Metrics        *prometheus.Registry
	RetryCallback  func(ctx context.Context, err error, nextRetry time.Duration)
}

type ProviderOption func(*ProviderOptions)

func WithBaseURL(url string) ProviderOption {
	return func(o *ProviderOptions) {
		o.BaseURL = url
	}
}

func WithRetryConfig(retryConfig *resilience.RetryConfig) ProviderOption {
	return func(o *ProviderOptions) {
		o.RetryConfig = retryConfig
	}
}

func WithCircuitBreaker(circuitBreaker *resilience.CircuitBreaker) ProviderOption {
	return func(o *ProviderOptions) {
		o.CircuitBreaker = circuitBreaker
	}
}

func WithMetrics(metrics *prometheus.Registry) ProviderOption {
	return func(o *ProviderOptions) {
		o.Metrics = metrics
	}
}

func WithRetryCallback(handler func(ctx context.Context, err error, nextRetry time.Duration)) ProviderOption {
	return func(o *ProviderOptions) {
		o.RetryCallback = handler
	}
}

func DefaultProviderOptions(name string) *ProviderOptions {
	return &ProviderOptions{
		RetryConfig: &resilience.RetryConfig{
			MaxAttempts:       5,
			InitialDelay:      1 * time.Second,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 2,
		},
		CircuitBreaker: resilience.NewCircuitBreaker(name, 5, 10*time.Second),
	}
}

type ProviderError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
	Kind       ProviderErrorKind
}

func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Err:      err,
	}
}

func (pe *ProviderError) Message() string {
	switch pe.Kind {
	case ProviderErrorKindInvalidRequest:
		return "Invalid request format or content"
	case ProviderErrorKindRateLimitExceeded:
		if pe.RetryAfter > 0 {
			return fmt.Sprintf("Rate limit exceeded, retry after %s", pe.RetryAfter)
		}
		return "Rate limit exceeded"
	case ProviderErrorKindOverloaded:
		return "API temporarily overloaded"
	case ProviderErrorKindInternal:
		return "Internal server error"
	case ProviderErrorKindTimeout:
		return "Request timeout"
	case ProviderErrorKindCanceled:
		return "Request canceled"
	default:
		return "Unknown error"
	}
}

func (pe *ProviderError) Retryable() (bool, time.Duration) {
	switch pe.Kind {
	case ProviderErrorKindRateLimitExceeded:
		return true, pe.RetryAfter
	case ProviderErrorKindOverloaded:
		return true, 20 * time.Second
	case ProviderErrorKindInternal, ProviderErrorKindTimeout:
		return true, 0
	default:
		return false, 0
	}
}

func (pe *ProviderError) Error() string {
	if pe.Err != nil {
		return fmt.Sprintf("%s: %s: %s", pe.Provider, pe.Message(), pe.Err.Error())
	}
	return fmt.Sprintf("%s: %s", pe.Provider, pe.Message())
}

func (pe *ProviderError) Unwrap() error {
	return pe.Err
}

type ProviderErrorKind string

const (
	ProviderErrorKindInvalidRequest    ProviderErrorKind = "invalid_request"
	ProviderErrorKindRateLimitExceeded ProviderErrorKind = "rate_limit_exceeded"
	ProviderErrorKindOverloaded        ProviderErrorKind = "overloaded"
	ProviderErrorKindInternal          ProviderErrorKind = "internal"
	ProviderErrorKindTimeout           ProviderErrorKind = "timeout"
	ProviderErrorKindCanceled          ProviderErrorKind = "canceled"
	ProviderErrorKindUnknown           ProviderErrorKind = "unknown"
)

func kindForStatus(status int) ProviderErrorKind {
	switch {
	case status == 400 || status == 404 || status == 422:
		return ProviderErrorKindInvalidRequest
	case status == 408:
		return ProviderErrorKindTimeout
	case status == 429:
		return ProviderErrorKindRateLimitExceeded
	case status == 503 || status == 529:
		return ProviderErrorKindOverloaded
	case status >= 500:
		return ProviderErrorKindInternal
	default:
		return ProviderErrorKindUnknown
	}
}

// retryable adapts ProviderError semantics for the resilience layer.
func retryable(err error) (bool, time.Duration) {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false, 0
	}
	return pe.Retryable()
}
