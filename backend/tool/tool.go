package tool

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/furisto/scout/backend/model"
)

// Handler executes a tool call. The returned string is surfaced to the model
// verbatim as the tool result.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

type TypedHandler[T any] func(ctx context.Context, input T) (string, error)

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Strict      bool
	Handler     Handler
}

func (t Tool) Declaration() model.ToolDeclaration {
	return model.ToolDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
		Strict:      t.Strict,
	}
}

type ToolOptions struct {
	Strict bool
}

func DefaultToolOptions() *ToolOptions {
	return &ToolOptions{
		Strict: true,
	}
}

type ToolOption func(*ToolOptions)

func WithStrict(strict bool) ToolOption {
	return func(o *ToolOptions) {
		o.Strict = strict
	}
}

// New derives the parameter schema from T by reflection and wraps a typed
// handler in JSON decoding.
func New[T any](name, description string, handler TypedHandler[T], opts ...ToolOption) Tool {
	options := DefaultToolOptions()
	for _, opt := range opts {
		opt(options)
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var toolInput T
	inputSchema := reflector.Reflect(toolInput)

	properties := map[string]any{}
	required := make([]string, 0)
	if inputSchema.Properties != nil {
		for pair := inputSchema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			property := map[string]any{
				"type": scalarType(pair.Value.Type),
			}
			if pair.Value.Description != "" {
				property["description"] = pair.Value.Description
			}
			properties[pair.Key] = property
			required = append(required, pair.Key)
		}
	}

	parameters := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}

	rawHandler := func(ctx context.Context, args json.RawMessage) (string, error) {
		var toolInput T
		if err := json.Unmarshal(args, &toolInput); err != nil {
			return "", err
		}
		return handler(ctx, toolInput)
	}

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Strict:      options.Strict,
		Handler:     rawHandler,
	}
}

// NewRaw builds a tool from an explicit parameter schema. Handlers receive the
// undecoded arguments, which keeps tools with legacy argument aliases possible.
func NewRaw(name, description string, parameters map[string]any, handler Handler, opts ...ToolOption) Tool {
	options := DefaultToolOptions()
	for _, opt := range opts {
		opt(options)
	}

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Strict:      options.Strict,
		Handler:     handler,
	}
}

// ObjectSchema assembles a strict object schema from property definitions.
// Every property is required.
func ObjectSchema(properties map[string]any, order ...string) map[string]any {
	required := order
	if len(required) == 0 {
		required = make([]string, 0, len(properties))
		for name := range properties {
			required = append(required, name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func StringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func IntegerProperty(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func scalarType(schemaType string) string {
	switch schemaType {
	case "string", "integer", "number", "boolean":
		return schemaType
	default:
		return "string"
	}
}
