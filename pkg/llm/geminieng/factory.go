package geminieng

import (
	"context"
	"log/slog"

	"axon/pkg/llm"
)

// Factory handles creation of Gemini engines.
type Factory struct{}

// Create implements llm.EngineFactory. Cartesian product of models and
// API keys, so a rate-limited key falls back to the next one.
func (f *Factory) Create(cfg llm.ProviderGroupConfig) ([]llm.Engine, error) {
	var engines []llm.Engine

	useThought := false
	if effort, ok := cfg.Options["thinking_effort"].(string); ok && effort != "" && effort != "off" {
		useThought = true
	}

	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			client, err := NewClient(context.Background(), key, model, useThought)
			if err != nil {
				slog.Error("Failed to create Gemini engine", "model", model, "error", err)
				continue
			}
			engines = append(engines, client)
		}
	}
	return engines, nil
}

func init() {
	llm.RegisterProvider("gemini", &Factory{})
}
