package llm

import (
	"strings"
	"time"
)

//----------------------------------------------------------------
// Message - conversation message structure
//----------------------------------------------------------------

// Message represents a single conversation message. Ordering within a
// history is insertion order and is semantically meaningful: it is the
// literal conversation sent to the engine.
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`    // "system", "user", "assistant", "tool"
	Content   []ContentBlock `json:"content"` // Ordered content blocks
	Timestamp int64          `json:"timestamp,omitempty"`

	// ToolCalls holds tool invocation requests produced by the engine
	// (valid only for role "assistant").
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID references the tool call this message answers
	// (valid only for role "tool").
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation request produced by the engine.
type ToolCall struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Function FunctionCall `json:"function"`

	// Meta carries provider-specific metadata (e.g. Gemini thought
	// signatures). Never serialized, internal plumbing only.
	Meta map[string]any `json:"-"`
}

// FunctionCall carries the concrete tool name and serialized arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

//----------------------------------------------------------------
// ContentBlock - unified content unit
//----------------------------------------------------------------

// ContentBlock is one unit of message content.
// Supported types: text, thinking, error.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

//----------------------------------------------------------------
// StreamChunk - incremental stream unit
//----------------------------------------------------------------

// StreamChunk represents one incremental fragment of a streamed engine
// response. Content blocks and tool calls contain only what is new in
// this fragment.
type StreamChunk struct {
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`

	// IsFinal marks the last chunk of the stream.
	IsFinal bool `json:"is_final"`

	// FinishReason is set on the final chunk only.
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage may appear mid-stream but is guaranteed on the final chunk.
	Usage *Usage `json:"usage,omitempty"`

	// Error is a user-facing error string surfaced inline in the stream.
	Error string `json:"error,omitempty"`

	// RawError is the underlying error that aborted the stream, if any.
	RawError error `json:"-"`
}

// Usage holds normalized token accounting for a single engine call.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

//----------------------------------------------------------------
// Helper Functions - Message
//----------------------------------------------------------------

// NewTextMessage builds a single-block text message with the current timestamp.
func NewTextMessage(role, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{{
			Type: BlockTypeText,
			Text: text,
		}},
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// NewUserMessage builds a user message.
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAssistantMessage builds an assistant message.
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// AddContentBlock appends a content block to the message.
func (m *Message) AddContentBlock(block ContentBlock) {
	m.Content = append(m.Content, block)
}

// TextContent concatenates all text blocks (thinking excluded).
func (m *Message) TextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ThinkingContent concatenates all thinking blocks.
func (m *Message) ThinkingContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeThinking {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// Clone returns a deep copy of the message: the content block and tool
// call slices are duplicated so snapshots never alias live history.
func (m Message) Clone() Message {
	cp := m
	if m.Content != nil {
		cp.Content = make([]ContentBlock, len(m.Content))
		copy(cp.Content, m.Content)
	}
	if m.ToolCalls != nil {
		cp.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(cp.ToolCalls, m.ToolCalls)
	}
	return cp
}

//----------------------------------------------------------------
// Helper Functions - ContentBlock
//----------------------------------------------------------------

// NewTextBlock builds a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// NewThinkingBlock builds a thinking block.
func NewThinkingBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeThinking, Text: text}
}

// NewErrorBlock builds an error block.
func NewErrorBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeError, Text: text}
}

//----------------------------------------------------------------
// Helper Functions - StreamChunk
//----------------------------------------------------------------

// NewTextChunk builds a chunk carrying one text delta.
func NewTextChunk(text string) StreamChunk {
	return StreamChunk{
		ContentBlocks: []ContentBlock{{Type: BlockTypeText, Text: text}},
	}
}

// NewThinkingChunk builds a chunk carrying one thinking delta.
func NewThinkingChunk(text string) StreamChunk {
	return StreamChunk{
		ContentBlocks: []ContentBlock{{Type: BlockTypeThinking, Text: text}},
	}
}

// NewToolCallChunk builds a chunk carrying completed tool calls.
func NewToolCallChunk(calls ...ToolCall) StreamChunk {
	return StreamChunk{ToolCalls: calls}
}

// NewErrorChunk builds an error chunk. When fatal, RawError is set so the
// consumer aborts the stream instead of surfacing the text inline.
func NewErrorChunk(msg string, err error, fatal bool) StreamChunk {
	c := StreamChunk{Error: msg}
	if fatal {
		c.RawError = err
		if c.RawError == nil {
			c.RawError = &streamError{msg: msg}
		}
	}
	return c
}

// NewFinalChunk builds the terminating chunk with usage accounting.
func NewFinalChunk(reason string, usage *Usage) StreamChunk {
	return StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		Usage:        usage,
	}
}

type streamError struct{ msg string }

func (e *streamError) Error() string { return e.msg }
