package tools

import (
	"context"
)

// HandlerFunc is the signature of a function-backed tool handler. It
// receives the parsed JSON argument object and returns a
// JSON-serializable result.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// FuncTool adapts a plain function into a Tool. This is the lightest way
// to hand ad-hoc capabilities to an agent at construction time.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	ToolParameters  map[string]any
	Handler         HandlerFunc
}

// NewFuncTool builds a function-backed tool.
func NewFuncTool(name, description string, params map[string]any, handler HandlerFunc) *FuncTool {
	return &FuncTool{
		ToolName:        name,
		ToolDescription: description,
		ToolParameters:  params,
		Handler:         handler,
	}
}

func (t *FuncTool) Name() string { return t.ToolName }

func (t *FuncTool) Description() string { return t.ToolDescription }

func (t *FuncTool) Parameters() map[string]any { return t.ToolParameters }

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.Handler(ctx, args)
}
