package api

import (
	"axon/pkg/llm"
)

// Channel defines the standardized lifecycle interface for chat front-ends.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
	Send(session SessionContext, message string) error
	Stream(session SessionContext, blocks <-chan llm.ContentBlock) error
}

// SignalingChannel is an optional extension of Channel for front-ends that
// support control signals (typing indicators, tool-phase markers).
type SignalingChannel interface {
	Channel
	// SendSignal transmits a control signal (e.g. "thinking",
	// "role:system") to the target session.
	SendSignal(session SessionContext, signal string) error
}

// ChannelContext is the interface a Channel uses to talk back to the
// gateway core.
type ChannelContext interface {
	MessageResponder
	OnMessage(channelID string, msg *UnifiedMessage)
}

// MessageResponder defines the capabilities for sending responses back to
// a channel.
type MessageResponder interface {
	SendReply(session SessionContext, content string) error
	StreamReply(session SessionContext, blocks <-chan llm.ContentBlock) error
	SendSignal(session SessionContext, signal string) error
}

// UnifiedMessage is the standardized internal representation of an
// incoming chat message, regardless of originating platform.
type UnifiedMessage struct {
	Session SessionContext // Source identity (channel, user, chat)
	Content string         // Plain text content
	Raw     any            // Optional original platform payload
}

// SessionContext encapsulates identity and routing information for one
// conversation on one channel.
type SessionContext struct {
	ChannelID string // Channel that originated the session (e.g. "web")
	UserID    string // Platform-specific user identifier
	ChatID    string // Platform-specific chat identifier
	Username  string // Display name as provided by the platform
}

// HistoryProvider exposes the stored transcript for a session, used by
// channels that replay history to reconnecting clients.
type HistoryProvider interface {
	HistoryFor(session SessionContext) []llm.Message
}

// MessageProcessor is implemented by components that consume incoming
// unified messages.
type MessageProcessor interface {
	OnMessage(msg *UnifiedMessage)
}

// ResponderAware is implemented by components that need a
// MessageResponder injected before use.
type ResponderAware interface {
	SetResponder(responder MessageResponder)
}
