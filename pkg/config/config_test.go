package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSystemConfig(t *testing.T) {
	cfg := DefaultSystemConfig()

	if cfg.MaxRetries != 3 || cfg.MaxToolRounds != 8 {
		t.Errorf("retry defaults: %+v", cfg)
	}
	if cfg.TelegramMessageLimit != 4000 {
		t.Errorf("telegram limit = %d", cfg.TelegramMessageLimit)
	}
	if !cfg.ShowThinking || !cfg.EnableTools {
		t.Error("feature defaults flipped off")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadSystemConfigMissingFile(t *testing.T) {
	cfg := LoadSystemConfig(filepath.Join(t.TempDir(), "absent.json"))
	if cfg.MaxToolRounds != 8 {
		t.Errorf("missing file should yield defaults: %+v", cfg)
	}
}

func TestLoadSystemConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	payload := `{"max_tool_rounds": 3, "log_level": "debug", "show_thinking": false}`
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadSystemConfig(path)
	if cfg.MaxToolRounds != 3 || cfg.LogLevel != "debug" || cfg.ShowThinking {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	// Untouched fields keep their defaults.
	if cfg.TelegramMessageLimit != 4000 {
		t.Errorf("default lost: %d", cfg.TelegramMessageLimit)
	}
}

func TestLoadSystemConfigCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadSystemConfig(path)
	if cfg.MaxRetries != 3 {
		t.Errorf("corrupt file should yield defaults: %+v", cfg)
	}
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())

	payload := `{
		"channels": {"web": {"port": 9000}},
		"engines": [{"type": "ollama", "models": ["llama3"]}],
		"system_prompt": "be nice",
		"agent": {"name": "axon", "model": "llama3", "temperature": 0.7, "max_tokens": 1024}
	}`
	if err := os.WriteFile("config.json", []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, sysCfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SystemPrompt != "be nice" || cfg.Agent.Model != "llama3" {
		t.Errorf("config = %+v", cfg)
	}
	if _, ok := cfg.Channels["web"]; !ok {
		t.Error("web channel config missing")
	}
	if sysCfg.MaxToolRounds != 8 {
		t.Errorf("system defaults missing: %+v", sysCfg)
	}
}

func TestLoadMissingConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, _, err := Load(); err == nil {
		t.Error("missing config.json accepted")
	}
}

func TestValidateRequiresEngines(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err == nil {
		t.Error("empty engines accepted")
	}

	cfg.Engines = []byte(`[{"type": "ollama"}]`)
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
