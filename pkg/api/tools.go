package api

import (
	"context"
)

// Tool defines the structural interface for any capability the agent can
// execute. It carries the metadata injected into completion requests
// (name, description, JSON-schema parameters) and the execution logic.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any

	// Execute runs the tool with parsed arguments. The returned value
	// must be JSON-serializable; it becomes the content of the tool-role
	// message answering the call.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ToolRegistry defines the interface for managing and accessing tools.
type ToolRegistry interface {
	Register(tool Tool)
	Unregister(name string) bool
	Get(name string) (Tool, bool)
	All() []Tool
}
