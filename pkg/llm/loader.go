package llm

import (
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoaderOptions carries the system-level knobs applied when assembling
// the engine stack.
type LoaderOptions struct {
	MaxRetries int
	RetryDelay time.Duration
}

// NewFromConfig builds the engine stack from the raw "engines" config
// section. A single engine is returned directly; multiple engines are
// wrapped in a FallbackEngine.
func NewFromConfig(rawEngines jsoniter.RawMessage, opts LoaderOptions) (Engine, error) {
	if rawEngines == nil {
		return nil, fmt.Errorf("missing 'engines' config")
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawEngines, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'engines' config: %w", err)
	}

	var engines []Engine
	for _, group := range groups {
		slog.Info("Loading engine group", "type", group.Type, "models", len(group.Models))

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type", "type", group.Type)
			continue
		}

		created, err := factory.Create(group)
		if err != nil {
			slog.Warn("Failed to create engines", "type", group.Type, "error", err)
			continue
		}
		engines = append(engines, created...)
	}

	if len(engines) == 0 {
		return nil, fmt.Errorf("no engines could be initialized")
	}

	slog.Info("Engines initialized", "count", len(engines))

	if len(engines) == 1 {
		return engines[0], nil
	}

	return &FallbackEngine{
		Engines:    engines,
		MaxRetries: opts.MaxRetries,
		RetryDelay: opts.RetryDelay,
	}, nil
}

// DebugCapable is implemented by engines that can capture their raw
// stream payloads for troubleshooting.
type DebugCapable interface {
	SetDebug(enabled bool)
}

// SetDebugAll toggles chunk capture on an engine, descending into
// fallback stacks so every member engine is covered.
func SetDebugAll(e Engine, enabled bool) {
	if fb, ok := e.(*FallbackEngine); ok {
		for _, inner := range fb.Engines {
			SetDebugAll(inner, enabled)
		}
		return
	}
	if d, ok := e.(DebugCapable); ok {
		d.SetDebug(enabled)
	}
}
