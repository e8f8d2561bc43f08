package model

import "encoding/json"

type Role string

const (
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleModel     Role = "model"
	RoleTool      Role = "tool"
)

type ItemType string

const (
	ItemTypeText             ItemType = "text"
	ItemTypeToolCall         ItemType = "tool_call"
	ItemTypeThinking         ItemType = "thinking"
	ItemTypeRedactedThinking ItemType = "redacted_thinking"
)

// OutputItem is one content item of a model output batch. A single response
// may carry any mix of text and tool-call items; their order is the model's
// own and is preserved end to end.
type OutputItem interface {
	ItemType() ItemType
}

type TextItem struct {
	Text string `json:"text"`
}

func (TextItem) ItemType() ItemType {
	return ItemTypeText
}

// ToolCallItem is a model-issued request to invoke a named tool. Correlation
// with its result happens through CallID, never through position.
type ToolCallItem struct {
	Name      string          `json:"name"`
	CallID    string          `json:"call_id"`
	Arguments json.RawMessage `json:"arguments"`
}

func (ToolCallItem) ItemType() ItemType {
	return ItemTypeToolCall
}

// ThinkingItem preserves a provider's reasoning block together with its
// signature. Providers that enable thinking reject a replayed assistant turn
// whose tool calls lack the preceding thinking block, so these items must
// survive the round trip untouched.
type ThinkingItem struct {
	Text      string `json:"text"`
	Signature string `json:"signature"`
}

func (ThinkingItem) ItemType() ItemType {
	return ItemTypeThinking
}

type RedactedThinkingItem struct {
	Data string `json:"data"`
}

func (RedactedThinkingItem) ItemType() ItemType {
	return ItemTypeRedactedThinking
}

type Turn interface {
	Role() Role
}

// DeveloperTurn carries the fixed system framing for one agent instance.
type DeveloperTurn struct {
	Text string
}

func (DeveloperTurn) Role() Role {
	return RoleDeveloper
}

type UserTurn struct {
	Text string
}

func (UserTurn) Role() Role {
	return RoleUser
}

// ModelTurn records a model output batch verbatim, preserving the model's
// own framing of text and tool-call items.
type ModelTurn struct {
	Items []OutputItem
}

func (ModelTurn) Role() Role {
	return RoleModel
}

type ToolResultTurn struct {
	CallID string
	Output string
}

func (ToolResultTurn) Role() Role {
	return RoleTool
}

// Transcript is the append-only conversation record driving one agent loop.
// Turns are never mutated or removed once appended.
type Transcript struct {
	turns []Turn
}

func NewTranscript(systemPrompt, userPrompt string) *Transcript {
	return &Transcript{
		turns: []Turn{
			DeveloperTurn{Text: systemPrompt},
			UserTurn{Text: userPrompt},
		},
	}
}

func (t *Transcript) Append(turns ...Turn) {
	t.turns = append(t.turns, turns...)
}

// Turns returns a copy of the recorded turns. Callers cannot reach the
// backing slice.
func (t *Transcript) Turns() []Turn {
	turns := make([]Turn, len(t.turns))
	copy(turns, t.turns)
	return turns
}

func (t *Transcript) Len() int {
	return len(t.turns)
}
