package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewDerivesStrictSchema(t *testing.T) {
	t.Parallel()

	type probeInput struct {
		Command string  `json:"command"`
		Count   int     `json:"count"`
		Ratio   float64 `json:"ratio"`
		Force   bool    `json:"force"`
	}

	probe := New("probe", "probes things", func(ctx context.Context, input probeInput) (string, error) {
		return "", nil
	})

	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string"},
			"count":   map[string]any{"type": "integer"},
			"ratio":   map[string]any{"type": "number"},
			"force":   map[string]any{"type": "boolean"},
		},
		"required":             []string{"command", "count", "ratio", "force"},
		"additionalProperties": false,
	}
	if diff := cmp.Diff(want, probe.Parameters); diff != "" {
		t.Errorf("unexpected schema (-want +got):\n%s", diff)
	}
	if !probe.Strict {
		t.Error("expected tool to be strict by default")
	}
}

func TestNewDecodesArguments(t *testing.T) {
	t.Parallel()

	type greetInput struct {
		Name string `json:"name"`
	}

	greet := New("greet", "greets", func(ctx context.Context, input greetInput) (string, error) {
		return "hello " + input.Name, nil
	})

	got, err := greet.Handler(context.Background(), json.RawMessage(`{"name":"scout"}`))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got != "hello scout" {
		t.Errorf("expected %q, got %q", "hello scout", got)
	}

	if _, err := greet.Handler(context.Background(), json.RawMessage(`not json`)); err == nil {
		t.Error("expected decode error for malformed arguments")
	}
}

func TestObjectSchema(t *testing.T) {
	t.Parallel()

	got := ObjectSchema(map[string]any{
		"instruction": StringProperty("what to do"),
		"max_rounds":  IntegerProperty("round cap"),
	}, "instruction", "max_rounds")

	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"instruction": map[string]any{"type": "string", "description": "what to do"},
			"max_rounds":  map[string]any{"type": "integer", "description": "round cap"},
		},
		"required":             []string{"instruction", "max_rounds"},
		"additionalProperties": false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected schema (-want +got):\n%s", diff)
	}
}

func TestToolboxPreservesRegistrationOrder(t *testing.T) {
	t.Parallel()

	noop := func(ctx context.Context, args json.RawMessage) (string, error) { return "", nil }
	toolbox := NewToolbox(
		NewRaw("charlie", "", ObjectSchema(map[string]any{}), noop),
		NewRaw("alpha", "", ObjectSchema(map[string]any{}), noop),
		NewRaw("bravo", "", ObjectSchema(map[string]any{}), noop),
	)

	var names []string
	for _, declaration := range toolbox.Declarations() {
		names = append(names, declaration.Name)
	}
	if diff := cmp.Diff([]string{"charlie", "alpha", "bravo"}, names); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestToolboxSubset(t *testing.T) {
	t.Parallel()

	noop := func(ctx context.Context, args json.RawMessage) (string, error) { return "", nil }
	toolbox := NewToolbox(
		NewRaw("alpha", "", ObjectSchema(map[string]any{}), noop),
		NewRaw("bravo", "", ObjectSchema(map[string]any{}), noop),
	)

	subset, err := toolbox.Subset("bravo")
	if err != nil {
		t.Fatalf("Subset returned error: %v", err)
	}
	if len(subset.List()) != 1 || subset.List()[0].Name != "bravo" {
		t.Errorf("unexpected subset contents: %+v", subset.List())
	}

	if _, err := toolbox.Subset("missing"); err == nil {
		t.Error("expected error for unknown tool name")
	}
}
