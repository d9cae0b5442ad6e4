package llm

// ProviderGroupConfig configures one group of models served by a single
// provider type. It is the standard factory input.
type ProviderGroupConfig struct {
	Type    string         `json:"type"`
	APIKeys []string       `json:"api_keys,omitempty"`
	Models  []string       `json:"models"`
	BaseURL string         `json:"base_url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// EngineFactory creates the atomic engines for one provider group.
type EngineFactory interface {
	Create(groupConfig ProviderGroupConfig) ([]Engine, error)
}

// Global provider registry, populated by the engine packages' init().
var providerRegistry = make(map[string]EngineFactory)

// RegisterProvider registers an EngineFactory under a provider type name.
func RegisterProvider(name string, factory EngineFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory returns the factory registered for a provider type.
func GetProviderFactory(name string) (EngineFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
