package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Config defines the global application configuration structure. It maps
// directly to config.json and holds business-level settings: channel
// credentials, engine provider choices, and agent defaults.
type Config struct {
	// Channels maps channel identifiers (e.g. "telegram", "web") to their
	// specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// Engines holds the inference engine provider configuration in raw
	// JSON, decoded by the engine loader.
	Engines jsoniter.RawMessage `json:"engines"`
	// SystemPrompt is the global persona/instruction string seeded as the
	// initial system message of every agent.
	SystemPrompt string `json:"system_prompt"`
	// Agent holds the default generation parameters applied to every
	// per-session agent.
	Agent AgentDefaults `json:"agent"`
}

// AgentDefaults carries the generation parameters used when constructing
// a new agent for a session.
type AgentDefaults struct {
	Name        string  `json:"name"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
	// StateDir is where agent state snapshots are persisted. Empty
	// disables persistence.
	StateDir string `json:"state_dir"`
}

// Validate ensures the configuration contains all mandatory fields. It
// acts as the primary guard before initialization proceeds.
func (c *Config) Validate() error {
	if len(c.Engines) == 0 {
		return fmt.Errorf("mandatory 'engines' configuration is missing or empty")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters, usually stored
// in system.json. These control performance, reliability, and technical
// behavior rather than business settings.
type SystemConfig struct {
	// MaxRetries is the number of attempts to recover from a transient
	// engine or network error before giving up.
	MaxRetries int `json:"max_retries"`
	// MaxToolRounds bounds the number of tool-execution rounds within a
	// single chat turn before the loop is cut off.
	MaxToolRounds int `json:"max_tool_rounds"`
	// RetryDelayMs is the wait (in milliseconds) between retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff (in milliseconds) for one engine
	// request; the context is cancelled when exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// OllamaDefaultURL is the fallback endpoint for a local Ollama
	// instance when no URL is configured.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// InternalChannelBuffer sizes the internal Go channels that buffer
	// stream chunks, preventing producer blocking.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// ThinkingInitDelayMs is the wait (in milliseconds) after a user
	// message before showing the "thinking" status in the UI.
	ThinkingInitDelayMs int `json:"thinking_init_delay_ms"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message; longer responses are split.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// ShowThinking streams the model's reasoning blocks to the end user
	// when true.
	ShowThinking bool `json:"show_thinking"`
	// DebugChunks saves every raw engine response chunk under /debug for
	// troubleshooting.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles tool calling. When false no tool
	// schemas are exposed to the engines.
	EnableTools bool `json:"enable_tools"`
}

// DefaultSystemConfig returns a SystemConfig with safe defaults, used as
// the fallback when system.json is missing or corrupt so the engine can
// always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:            3,
		MaxToolRounds:         8,
		RetryDelayMs:          500,
		LLMTimeoutMs:          600000,
		OllamaDefaultURL:      "http://localhost:11434",
		InternalChannelBuffer: 100,
		ThinkingInitDelayMs:   500,
		TelegramMessageLimit:  4000,
		ShowThinking:          true,
		LogLevel:              "info",
		EnableTools:           true,
	}
}

// Load reads and parses the JSON configuration files from the current
// working directory: config.json (mandatory) and system.json (optional,
// defaults applied).
func Load() (*Config, *SystemConfig, error) {
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig("system.json")

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returning defaults
// when the file is missing or unparseable.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return cfg
	}

	return cfg
}
