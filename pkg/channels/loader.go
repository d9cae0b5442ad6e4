package channels

import (
	"log/slog"

	jsoniter "github.com/json-iterator/go"

	"axon/pkg/api"
	"axon/pkg/config"
	"axon/pkg/gateway"
)

// LoadFromConfig is the central orchestration point for dynamic channel
// initialization: it walks the configuration map, resolves factories, and
// registers the resulting channels with the gateway.
func LoadFromConfig(gw *gateway.Manager, configs map[string]jsoniter.RawMessage, history api.HistoryProvider, system *config.SystemConfig) {
	for name, rawConfig := range configs {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(rawConfig, history, system)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}

		// A nil channel without error means the factory declined (e.g.
		// disabled in config).
		if channel == nil {
			continue
		}

		gw.Register(channel)
		slog.Info("Channel registered", "name", name)
	}
}
