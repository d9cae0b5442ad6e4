package openaieng

import (
	"log/slog"

	"axon/pkg/llm"
)

// Factory handles creation of OpenAI engines.
type Factory struct{}

// Create implements llm.EngineFactory.
func (f *Factory) Create(cfg llm.ProviderGroupConfig) ([]llm.Engine, error) {
	var engines []llm.Engine

	apiKey := ""
	if len(cfg.APIKeys) > 0 {
		apiKey = cfg.APIKeys[0]
	}

	for _, model := range cfg.Models {
		client, err := NewClient("openai", apiKey, model, cfg.BaseURL)
		if err != nil {
			slog.Error("Failed to create OpenAI engine", "model", model, "error", err)
			continue
		}
		engines = append(engines, client)
	}
	return engines, nil
}

func init() {
	llm.RegisterProvider("openai", &Factory{})
}
