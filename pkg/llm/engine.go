package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ToolSchema describes one tool exposed to the engine: a unique name, a
// human-readable description, and a JSON-schema-like parameter object.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// CompletionRequest is the normalized chat-completion request handed to an
// engine adapter. Adapters translate it into their native wire format.
type CompletionRequest struct {
	Messages    []Message    `json:"messages"`
	Temperature float64      `json:"temperature"`
	TopP        float64      `json:"top_p"`
	MaxTokens   int          `json:"max_tokens"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
}

// Completion is a single non-streamed engine response.
type Completion struct {
	Content    []ContentBlock `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// Engine is the inference adapter contract consumed by the agent core.
//
// Reload prepares the adapter for the given model, doing whatever the
// backing runtime needs (verification, weight preloading). Complete performs one
// blocking chat completion; StreamComplete returns a channel of incremental
// chunks that is closed after the final chunk.
type Engine interface {
	Reload(ctx context.Context, model string) error
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// IsTransientError reports whether an error is worth retrying
	// (connection resets, 5xx, overload).
	IsTransientError(err error) bool
}

// LogUsage emits a normalized usage record for one engine call.
func LogUsage(model string, usage *Usage) {
	if usage == nil {
		return
	}
	slog.Info("Engine usage",
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"thoughts_tokens", usage.ThoughtsTokens,
		"stop_reason", usage.StopReason,
	)
}

//----------------------------------------------------------------
// FallbackEngine - tiered multi-engine wrapper
//----------------------------------------------------------------

// FallbackEngine tries a list of engines in order, retrying transient
// failures per engine before moving to the next.
type FallbackEngine struct {
	Engines    []Engine
	MaxRetries int
	RetryDelay time.Duration
}

// Reload forwards the reload to every child engine. It succeeds if at
// least one child accepts the model.
func (f *FallbackEngine) Reload(ctx context.Context, model string) error {
	var lastErr error
	ok := false
	for i, eng := range f.Engines {
		if err := eng.Reload(ctx, model); err != nil {
			slog.Warn("Engine reload failed", "engine", i+1, "model", model, "error", err)
			lastErr = err
			continue
		}
		ok = true
	}
	if !ok {
		return fmt.Errorf("all engines failed to reload model %q: %w", model, lastErr)
	}
	return nil
}

// Complete implements Engine.
func (f *FallbackEngine) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	var lastErr error
	var result *Completion
	err := f.attempt(ctx, func(eng Engine) error {
		comp, err := eng.Complete(ctx, req)
		if err != nil {
			return err
		}
		result = comp
		return nil
	}, &lastErr)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StreamComplete implements Engine.
func (f *FallbackEngine) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	var lastErr error
	var result <-chan StreamChunk
	err := f.attempt(ctx, func(eng Engine) error {
		ch, err := eng.StreamComplete(ctx, req)
		if err != nil {
			return err
		}
		result = ch
		return nil
	}, &lastErr)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// attempt walks the engine list applying the per-engine retry policy.
func (f *FallbackEngine) attempt(ctx context.Context, call func(Engine) error, lastErr *error) error {
	for i, eng := range f.Engines {
		if i > 0 {
			slog.Warn("Previous engine failed, trying fallback", "engine", i+1)
		}

		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			err := call(eng)
			if err == nil {
				return nil
			}
			*lastErr = err

			if eng.IsTransientError(err) && retry < maxRetries {
				slog.Warn("Engine failed with transient error, retrying",
					"engine", i+1, "attempt", fmt.Sprintf("%d/%d", retry, maxRetries), "error", err)
				continue
			}

			slog.Error("Engine failed", "engine", i+1, "error", err)
			break
		}
	}
	return fmt.Errorf("all fallback engines failed, last error: %w", *lastErr)
}

// IsTransientError implements Engine. A FallbackEngine error means every
// child already failed, so it is treated as non-transient.
func (f *FallbackEngine) IsTransientError(err error) bool {
	return false
}
