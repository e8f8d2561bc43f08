package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Dispatcher resolves tool calls against a toolbox. Dispatch never returns an
// error to the caller; failures are encoded into the result payload so the
// model can react to them.
type Dispatcher struct {
	toolbox *Toolbox
	logger  *slog.Logger
}

func NewDispatcher(toolbox *Toolbox, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		toolbox: toolbox,
		logger:  logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) string {
	tool, ok := d.toolbox.Get(name)
	if !ok {
		d.logger.Warn("unknown tool requested", "tool", name)
		return errorPayload(fmt.Sprintf("Unknown tool: %s", name), args)
	}

	output, err := d.invoke(ctx, tool, args)
	if err != nil {
		d.logger.Error("tool execution failed", "tool", name, "error", err)
		return errorPayload(err.Error(), args)
	}

	encoded, err := json.Marshal(output)
	if err != nil {
		return errorPayload(err.Error(), args)
	}
	return string(encoded)
}

func (d *Dispatcher) invoke(ctx context.Context, tool Tool, args json.RawMessage) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", tool.Name, r)
		}
	}()
	return tool.Handler(ctx, args)
}

func errorPayload(message string, args json.RawMessage) string {
	payload := map[string]any{
		"error": message,
		"args":  decodeArgs(args),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, message)
	}
	return string(encoded)
}

func decodeArgs(args json.RawMessage) any {
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return string(args)
	}
	return decoded
}
