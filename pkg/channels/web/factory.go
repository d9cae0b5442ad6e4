package web

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"axon/pkg/api"
	"axon/pkg/channels"
	"axon/pkg/config"
	"axon/pkg/gateway"
)

// WebFactory creates Web channels.
type WebFactory struct{}

// Create implements channels.ChannelFactory.
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, history api.HistoryProvider, system *config.SystemConfig) (gateway.Channel, error) {
	pCfg := WebConfig{Port: 8080}

	if err := json.Unmarshal(rawConfig, &pCfg); err != nil {
		return nil, fmt.Errorf("failed to parse web config: %w", err)
	}

	return NewWebChannel(pCfg, history), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
