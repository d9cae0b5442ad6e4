package agent

import (
	"axon/pkg/api"
)

// Config holds the agent's identity, generation parameters, and initial
// tool set. It is immutable except through UpdateConfig, which replaces
// the whole value via a shallow merge.
type Config struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"system_prompt,omitempty"`

	// Tools supplied at construction time are registered with the agent
	// and then managed through the registry, not the config. Never
	// serialized.
	Tools []api.Tool `json:"-"`
}

// Clone returns an explicit field-by-field copy. The tool slice is
// duplicated so config snapshots never alias live state.
func (c Config) Clone() Config {
	cp := Config{
		ID:           c.ID,
		Name:         c.Name,
		Model:        c.Model,
		Temperature:  c.Temperature,
		TopP:         c.TopP,
		MaxTokens:    c.MaxTokens,
		SystemPrompt: c.SystemPrompt,
	}
	if c.Tools != nil {
		cp.Tools = make([]api.Tool, len(c.Tools))
		copy(cp.Tools, c.Tools)
	}
	return cp
}

// ConfigUpdate carries a partial configuration change. Nil fields are
// left untouched by the merge; the agent ID is not updatable.
type ConfigUpdate struct {
	Name         *string  `json:"name,omitempty"`
	Model        *string  `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty"`
}

// apply merges the update into the config.
func (c *Config) apply(u ConfigUpdate) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Model != nil {
		c.Model = *u.Model
	}
	if u.Temperature != nil {
		c.Temperature = *u.Temperature
	}
	if u.TopP != nil {
		c.TopP = *u.TopP
	}
	if u.MaxTokens != nil {
		c.MaxTokens = *u.MaxTokens
	}
	if u.SystemPrompt != nil {
		c.SystemPrompt = *u.SystemPrompt
	}
}
