package tool

import (
	"fmt"

	"github.com/furisto/scout/backend/model"
)

// Toolbox is an ordered tool registry. Declaration order is preserved so the
// model sees tools in a stable sequence across rounds.
type Toolbox struct {
	order []string
	tools map[string]Tool
}

func NewToolbox(tools ...Tool) *Toolbox {
	toolbox := &Toolbox{
		tools: map[string]Tool{},
	}
	for _, t := range tools {
		toolbox.Register(t)
	}
	return toolbox
}

func (t *Toolbox) Register(tool Tool) {
	if _, exists := t.tools[tool.Name]; !exists {
		t.order = append(t.order, tool.Name)
	}
	t.tools[tool.Name] = tool
}

func (t *Toolbox) Get(name string) (Tool, bool) {
	tool, ok := t.tools[name]
	return tool, ok
}

func (t *Toolbox) List() []Tool {
	tools := make([]Tool, 0, len(t.order))
	for _, name := range t.order {
		tools = append(tools, t.tools[name])
	}
	return tools
}

func (t *Toolbox) Declarations() []model.ToolDeclaration {
	declarations := make([]model.ToolDeclaration, 0, len(t.order))
	for _, name := range t.order {
		declarations = append(declarations, t.tools[name].Declaration())
	}
	return declarations
}

// Subset returns a toolbox restricted to the named tools, preserving the
// order given. Unknown names are an error so misconfigured agents fail fast.
func (t *Toolbox) Subset(names ...string) (*Toolbox, error) {
	subset := NewToolbox()
	for _, name := range names {
		tool, ok := t.tools[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		subset.Register(tool)
	}
	return subset, nil
}
