package model

import (
	"encoding/json"
	"testing"
)

func TestEncodeOpenAIInput(t *testing.T) {
	t.Parallel()

	transcript := NewTranscript("system", "user")
	transcript.Append(
		ModelTurn{Items: []OutputItem{
			TextItem{Text: "thinking"},
			ToolCallItem{Name: "probe", CallID: "call_1", Arguments: json.RawMessage(`{"depth":2}`)},
		}},
		ToolResultTurn{CallID: "call_1", Output: "probe done"},
	)

	items := encodeOpenAIInput(transcript)

	// developer, user, assistant text, function call, function call output
	if len(items) != 5 {
		t.Fatalf("expected 5 input items, got %d", len(items))
	}

	if items[0].OfMessage == nil || items[1].OfMessage == nil || items[2].OfMessage == nil {
		t.Fatal("expected the first three items to be messages")
	}

	call := items[3].OfFunctionCall
	if call == nil {
		t.Fatal("expected a function call item")
	}
	if call.CallID != "call_1" || call.Name != "probe" || call.Arguments != `{"depth":2}` {
		t.Errorf("unexpected function call: %+v", call)
	}

	output := items[4].OfFunctionCallOutput
	if output == nil {
		t.Fatal("expected a function call output item")
	}
	if output.CallID != "call_1" {
		t.Errorf("unexpected call id %q", output.CallID)
	}
}

func TestEncodeOpenAITools(t *testing.T) {
	t.Parallel()

	tools := encodeOpenAITools([]ToolDeclaration{
		{
			Name:        "probe",
			Description: "probes the target",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Strict: true,
		},
	})

	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	fn := tools[0].OfFunction
	if fn == nil {
		t.Fatal("expected a function tool variant")
	}
	if fn.Name != "probe" || !fn.Strict.Value {
		t.Errorf("unexpected function tool: %+v", fn)
	}
}
