package ollamaeng

import (
	"log/slog"

	"axon/pkg/llm"
)

// Factory handles creation of Ollama engines.
type Factory struct{}

// Create implements llm.EngineFactory. One engine per configured model;
// a model that fails construction is skipped rather than failing the
// whole group.
func (f *Factory) Create(cfg llm.ProviderGroupConfig) ([]llm.Engine, error) {
	var engines []llm.Engine

	for _, model := range cfg.Models {
		client, err := NewClient(model, cfg.BaseURL, cfg.Options)
		if err != nil {
			slog.Error("Failed to create Ollama engine", "model", model, "error", err)
			continue
		}
		engines = append(engines, client)
	}
	return engines, nil
}

func init() {
	llm.RegisterProvider("ollama", &Factory{})
}
