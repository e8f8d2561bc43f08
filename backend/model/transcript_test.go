package model

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTranscriptIsAppendOnly(t *testing.T) {
	t.Parallel()

	transcript := NewTranscript("system", "user")
	transcript.Append(ModelTurn{Items: []OutputItem{TextItem{Text: "thinking"}}})

	turns := transcript.Turns()
	turns[0] = UserTurn{Text: "tampered"}

	if _, ok := transcript.Turns()[0].(DeveloperTurn); !ok {
		t.Error("mutating the returned slice must not affect the transcript")
	}
	if transcript.Len() != 3 {
		t.Errorf("expected 3 turns, got %d", transcript.Len())
	}
}

func TestResponseAccessors(t *testing.T) {
	t.Parallel()

	response := &Response{
		Output: []OutputItem{
			TextItem{Text: "first "},
			ToolCallItem{Name: "probe", CallID: "call_1", Arguments: json.RawMessage(`{}`)},
			TextItem{Text: "second"},
			ToolCallItem{Name: "scan", CallID: "call_2", Arguments: json.RawMessage(`{}`)},
		},
	}

	if got := response.Text(); got != "first second" {
		t.Errorf("unexpected text %q", got)
	}

	var names []string
	for _, call := range response.ToolCalls() {
		names = append(names, call.Name)
	}
	if diff := cmp.Diff([]string{"probe", "scan"}, names); diff != "" {
		t.Errorf("unexpected tool calls (-want +got):\n%s", diff)
	}
}

func TestKindForStatus(t *testing.T) {
	t.Parallel()

	scenarios := []struct {
		status int
		want   ProviderErrorKind
	}{
		{status: 400, want: ProviderErrorKindInvalidRequest},
		{status: 404, want: ProviderErrorKindInvalidRequest},
		{status: 408, want: ProviderErrorKindTimeout},
		{status: 429, want: ProviderErrorKindRateLimitExceeded},
		{status: 500, want: ProviderErrorKindInternal},
		{status: 503, want: ProviderErrorKindOverloaded},
		{status: 529, want: ProviderErrorKindOverloaded},
		{status: 418, want: ProviderErrorKindUnknown},
	}

	for _, scenario := range scenarios {
		if got := kindForStatus(scenario.status); got != scenario.want {
			t.Errorf("kindForStatus(%d) = %s, want %s", scenario.status, got, scenario.want)
		}
	}
}

func TestProviderErrorRetryable(t *testing.T) {
	t.Parallel()

	scenarios := []struct {
		kind      ProviderErrorKind
		wantRetry bool
	}{
		{kind: ProviderErrorKindRateLimitExceeded, wantRetry: true},
		{kind: ProviderErrorKindOverloaded, wantRetry: true},
		{kind: ProviderErrorKindInternal, wantRetry: true},
		{kind: ProviderErrorKindTimeout, wantRetry: true},
		{kind: ProviderErrorKindInvalidRequest, wantRetry: false},
		{kind: ProviderErrorKindCanceled, wantRetry: false},
	}

	for _, scenario := range scenarios {
		pe := NewProviderError("test", scenario.kind, nil)
		if got, _ := pe.Retryable(); got != scenario.wantRetry {
			t.Errorf("Retryable() for %s = %v, want %v", scenario.kind, got, scenario.wantRetry)
		}
	}
}
