package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDispatch(t *testing.T) {
	t.Parallel()

	toolbox := NewToolbox(
		NewRaw("echo", "", ObjectSchema(map[string]any{}),
			func(ctx context.Context, args json.RawMessage) (string, error) {
				return "echoed", nil
			}),
		NewRaw("broken", "", ObjectSchema(map[string]any{}),
			func(ctx context.Context, args json.RawMessage) (string, error) {
				return "", fmt.Errorf("handler exploded")
			}),
		NewRaw("panicky", "", ObjectSchema(map[string]any{}),
			func(ctx context.Context, args json.RawMessage) (string, error) {
				panic("unexpected state")
			}),
	)
	dispatcher := NewDispatcher(toolbox, nil)

	scenarios := []struct {
		name string
		tool string
		args string
		want any
	}{
		{
			name: "successful call returns the JSON-encoded output",
			tool: "echo",
			args: `{"value":1}`,
			want: "echoed",
		},
		{
			name: "unknown tool reports the name and echoes the arguments",
			tool: "missing",
			args: `{"value":1}`,
			want: map[string]any{
				"error": "Unknown tool: missing",
				"args":  map[string]any{"value": float64(1)},
			},
		},
		{
			name: "handler error is encoded instead of propagated",
			tool: "broken",
			args: `{"value":1}`,
			want: map[string]any{
				"error": "handler exploded",
				"args":  map[string]any{"value": float64(1)},
			},
		},
		{
			name: "panicking handler is contained",
			tool: "panicky",
			args: `{}`,
			want: map[string]any{
				"error": "tool panicky panicked: unexpected state",
				"args":  map[string]any{},
			},
		},
	}

	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			t.Parallel()

			payload := dispatcher.Dispatch(context.Background(), scenario.tool, json.RawMessage(scenario.args))

			var got any
			if err := json.Unmarshal([]byte(payload), &got); err != nil {
				t.Fatalf("dispatch returned invalid JSON %q: %v", payload, err)
			}
			if diff := cmp.Diff(scenario.want, got); diff != "" {
				t.Errorf("unexpected payload (-want +got):\n%s", diff)
			}
		})
	}
}
