package llm

import (
	"context"
	"fmt"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

type stubEngine struct{ model string }

func (e *stubEngine) Reload(ctx context.Context, model string) error { return nil }
func (e *stubEngine) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	return &Completion{}, nil
}
func (e *stubEngine) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	close(ch)
	return ch, nil
}
func (e *stubEngine) IsTransientError(err error) bool { return false }

func (e *stubEngine) SetDebug(enabled bool) {}

type stubFactory struct{ failing bool }

func (f *stubFactory) Create(cfg ProviderGroupConfig) ([]Engine, error) {
	if f.failing {
		return nil, fmt.Errorf("provider unavailable")
	}
	engines := make([]Engine, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		engines = append(engines, &stubEngine{model: m})
	}
	return engines, nil
}

func TestNewFromConfigSingleEngine(t *testing.T) {
	RegisterProvider("stub-single", &stubFactory{})

	raw := jsoniter.RawMessage(`[{"type": "stub-single", "models": ["m1"]}]`)
	eng, err := NewFromConfig(raw, LoaderOptions{})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if _, ok := eng.(*stubEngine); !ok {
		t.Errorf("single engine wrapped unnecessarily: %T", eng)
	}
}

func TestNewFromConfigFallbackWrapping(t *testing.T) {
	RegisterProvider("stub-multi", &stubFactory{})

	raw := jsoniter.RawMessage(`[{"type": "stub-multi", "models": ["m1", "m2"]}]`)
	eng, err := NewFromConfig(raw, LoaderOptions{MaxRetries: 2})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	fb, ok := eng.(*FallbackEngine)
	if !ok {
		t.Fatalf("expected FallbackEngine, got %T", eng)
	}
	if len(fb.Engines) != 2 || fb.MaxRetries != 2 {
		t.Errorf("fallback = %d engines, retries %d", len(fb.Engines), fb.MaxRetries)
	}
}

func TestNewFromConfigSkipsUnknownProvider(t *testing.T) {
	RegisterProvider("stub-known", &stubFactory{})

	raw := jsoniter.RawMessage(`[
		{"type": "no-such-provider", "models": ["x"]},
		{"type": "stub-known", "models": ["m1"]}
	]`)
	eng, err := NewFromConfig(raw, LoaderOptions{})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if eng == nil {
		t.Fatal("nil engine")
	}
}

func TestNewFromConfigNoEngines(t *testing.T) {
	if _, err := NewFromConfig(nil, LoaderOptions{}); err == nil {
		t.Error("nil config accepted")
	}

	raw := jsoniter.RawMessage(`[{"type": "never-registered", "models": ["x"]}]`)
	if _, err := NewFromConfig(raw, LoaderOptions{}); err == nil {
		t.Error("config with zero usable engines accepted")
	}

	RegisterProvider("stub-broken", &stubFactory{failing: true})
	raw = jsoniter.RawMessage(`[{"type": "stub-broken", "models": ["x"]}]`)
	if _, err := NewFromConfig(raw, LoaderOptions{}); err == nil {
		t.Error("config whose only factory fails accepted")
	}
}

func TestSetDebugAllDescendsFallback(t *testing.T) {
	// Engines that do not implement DebugCapable are simply skipped;
	// this must not panic on a mixed stack.
	inner := &FallbackEngine{Engines: []Engine{&stubEngine{}, &countingEngine{}}}
	SetDebugAll(inner, true)
	SetDebugAll(&stubEngine{}, false)
}
