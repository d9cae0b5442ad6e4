package gateway

import (
	"axon/pkg/api"
)

// Re-export the channel-facing types from the api package so channel
// implementations and the gateway share one vocabulary.
type Channel = api.Channel
type SignalingChannel = api.SignalingChannel
type MessageResponder = api.MessageResponder
type ChannelContext = api.ChannelContext
type UnifiedMessage = api.UnifiedMessage
type SessionContext = api.SessionContext

// MessageHandler processes one standardized incoming message.
type MessageHandler func(msg *UnifiedMessage)
