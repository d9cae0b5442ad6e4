package channels

import (
	jsoniter "github.com/json-iterator/go"

	"axon/pkg/api"
	"axon/pkg/config"
	"axon/pkg/gateway"
)

// ChannelFactory defines the abstract interface for platform-specific
// channel creators, so new platforms (Line, Discord) plug in without
// touching the core gateway logic.
type ChannelFactory interface {
	// Create instantiates a concrete Channel from its raw configuration
	// and the shared system resources.
	Create(rawConfig jsoniter.RawMessage, history api.HistoryProvider, system *config.SystemConfig) (gateway.Channel, error)
}

// channelRegistry maps platform names (e.g. "telegram") to their factory
// implementations.
var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel adds a ChannelFactory to the global registry, typically
// from a package init().
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered ChannelFactory by name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}
