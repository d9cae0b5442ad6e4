package llm

// Role constants for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// StopReason constants define normalized reasons for generation termination.
// All engine adapters must normalize their native stop reasons to these values.
const (
	StopReasonStop   = "stop"   // Normal completion
	StopReasonLength = "length" // Output truncated due to token limit
)

// ContentBlock Type constants define the supported content block formats
// used throughout the message pipeline.
const (
	BlockTypeText     = "text"     // Plain text content
	BlockTypeThinking = "thinking" // Internal reasoning/chain-of-thought
	BlockTypeError    = "error"    // Error message displayed to user
)

// ToolChoiceAuto is attached to a completion request whenever tools are
// present, letting the model decide if and when to call them.
const ToolChoiceAuto = "auto"

type contextKey string

// DebugDirContextKey carries the per-request debug directory name used by
// StreamDebugger to group raw chunk captures.
const DebugDirContextKey contextKey = "llm_debug_dir"
