package geminieng

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"

	"axon/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client adapts the Google GenAI SDK to the llm.Engine contract.
type Client struct {
	client       *genai.Client
	useThought   bool
	debugEnabled bool

	mu    sync.RWMutex
	model string
}

// NewClient creates a Gemini engine.
func NewClient(ctx context.Context, apiKey string, model string, useThought bool) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client:     client,
		model:      model,
		useThought: useThought,
	}, nil
}

// SetDebug toggles raw chunk capture.
func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) currentModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Reload makes the model active for subsequent completions. Gemini is a
// hosted API with nothing to preload; validation happens on first use.
func (c *Client) Reload(ctx context.Context, model string) error {
	if model == "" {
		model = c.currentModel()
	}
	if model == "" {
		return fmt.Errorf("no model configured")
	}

	c.mu.Lock()
	c.model = model
	c.mu.Unlock()

	slog.Info("Gemini model selected", "model", model)
	return nil
}

func (c *Client) buildConfig(req llm.CompletionRequest) *genai.GenerateContentConfig {
	_, systemInstruction := convertMessages(req.Messages)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             convertTools(req.Tools),
	}
	if c.useThought {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP != 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.MaxTokens != 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

// Complete performs one blocking generation.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	model := c.currentModel()
	contents, _ := convertMessages(req.Messages)

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, c.buildConfig(req))
	if err != nil {
		return nil, err
	}

	comp := &llm.Completion{Content: []llm.ContentBlock{}}

	for _, candidate := range resp.Candidates {
		if candidate.FinishReason != "" {
			comp.StopReason = normalizeStopReason(string(candidate.FinishReason))
		}
		if candidate.Content == nil {
			continue
		}
		blocks, calls := convertParts(candidate.Content.Parts)
		comp.Content = append(comp.Content, blocks...)
		comp.ToolCalls = append(comp.ToolCalls, calls...)
	}

	if resp.UsageMetadata != nil {
		u := resp.UsageMetadata
		comp.Usage = &llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
			ThoughtsTokens:   int(u.ThoughtsTokenCount),
			StopReason:       comp.StopReason,
		}
		llm.LogUsage(model, comp.Usage)
	}

	return comp, nil
}

// StreamComplete performs one streamed generation. Initiation failures
// are reported synchronously through the first-chunk handshake.
func (c *Client) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	model := c.currentModel()
	contents, _ := convertMessages(req.Messages)
	cfg := c.buildConfig(req)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)

		debugger := llm.NewStreamDebugger(ctx, "gemini", c.debugEnabled)
		defer debugger.Close()

		iter := c.client.Models.GenerateContentStream(ctx, model, contents, cfg)

		started := false
		var lastUsage *llm.Usage
		stopReason := llm.StopReasonStop

		for resp, err := range iter {
			if resp != nil {
				if data, merr := json.Marshal(resp); merr == nil {
					debugger.Write(data)
				}
			}
			if err != nil {
				// The iterator can yield trailing data alongside an error;
				// a nil resp means the stream is dead.
				if resp == nil {
					slog.Error("Stream error", "provider", "gemini", "model", model, "error", err)
					if !started {
						startResultCh <- err
					} else {
						chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
					}
					return
				}
				slog.Warn("Stream error with data", "provider", "gemini", "error", err)
			}

			if !started {
				started = true
				startResultCh <- nil
			}

			// Usage metadata usually rides the last chunk.
			if resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				lastUsage = &llm.Usage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
					ThoughtsTokens:   int(u.ThoughtsTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" {
					stopReason = normalizeStopReason(string(candidate.FinishReason))
					if stopReason == llm.StopReasonLength {
						chunkCh <- llm.NewErrorChunk("Response truncated due to max tokens limit.", nil, false)
					}
				}

				if candidate.Content == nil {
					continue
				}
				blocks, calls := convertParts(candidate.Content.Parts)
				if len(blocks) > 0 || len(calls) > 0 {
					chunkCh <- llm.StreamChunk{ContentBlocks: blocks, ToolCalls: calls}
				}
			}
		}

		if lastUsage != nil {
			lastUsage.StopReason = stopReason
			llm.LogUsage(model, lastUsage)
		}
		chunkCh <- llm.NewFinalChunk(stopReason, lastUsage)

		if !started {
			startResultCh <- nil
		}
	}()

	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// convertParts maps response parts to content blocks and tool calls.
func convertParts(parts []*genai.Part) ([]llm.ContentBlock, []llm.ToolCall) {
	var blocks []llm.ContentBlock
	var calls []llm.ToolCall

	for _, part := range parts {
		if part.Text != "" {
			if part.Thought {
				blocks = append(blocks, llm.NewThinkingBlock(part.Text))
			} else {
				blocks = append(blocks, llm.NewTextBlock(part.Text))
			}
		}

		if part.FunctionCall != nil {
			argsB, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				argsB = []byte("{}")
			}
			calls = append(calls, llm.ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Function: llm.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(argsB),
				},
				// Keep the original call so history echoes preserve
				// provider extras like thought signatures.
				Meta: map[string]any{
					"gemini_function_call": part.FunctionCall,
				},
			})
			slog.Debug("Tool call", "provider", "gemini", "name", part.FunctionCall.Name)
		}
	}

	return blocks, calls
}

// convertMessages converts the normalized history to GenAI contents plus
// an optional system instruction.
func convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			var parts []*genai.Part
			for _, block := range msg.Content {
				if block.Type == llm.BlockTypeText && block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text})
				}
			}
			if len(parts) > 0 {
				systemInstruction = &genai.Content{Parts: parts}
			}
			continue
		}

		// Tool results ride the user role in Gemini.
		if msg.Role == llm.RoleTool {
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.ToolCallID,
						Response: map[string]any{"result": msg.TextContent()},
					},
				}},
			})
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part

		// Gemini requires the model's own function calls echoed back
		// before their responses.
		for _, tc := range msg.ToolCalls {
			if tc.Meta != nil {
				if originalFC, ok := tc.Meta["gemini_function_call"].(*genai.FunctionCall); ok {
					parts = append(parts, &genai.Part{FunctionCall: originalFC})
					continue
				}
			}

			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				slog.Warn("Failed to rebuild tool arguments", "provider", "gemini", "error", err)
			}
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: args,
				},
			})
		}

		for _, block := range msg.Content {
			switch block.Type {
			case llm.BlockTypeText:
				if block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text})
				}
			case llm.BlockTypeThinking:
				if block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text, Thought: true})
				}
			}
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, systemInstruction
}

func convertTools(schemas []llm.ToolSchema) []*genai.Tool {
	if len(schemas) == 0 {
		return nil
	}

	var fds []*genai.FunctionDeclaration
	for _, s := range schemas {
		fd := &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
		}
		if s.Parameters != nil {
			schemaB, err := json.Marshal(s.Parameters)
			if err == nil {
				var schema genai.Schema
				if err := json.Unmarshal(schemaB, &schema); err == nil {
					fd.Parameters = &schema
				}
			}
		}
		fds = append(fds, fd)
	}

	return []*genai.Tool{{FunctionDeclarations: fds}}
}

// normalizeStopReason maps Gemini finish reasons to the normalized set.
func normalizeStopReason(reason string) string {
	switch {
	case reason == "" || strings.EqualFold(reason, "STOP"):
		return llm.StopReasonStop
	case strings.Contains(strings.ToUpper(reason), "MAX_TOKENS"):
		return llm.StopReasonLength
	default:
		return strings.ToLower(reason)
	}
}

// IsTransientError implements llm.Engine.
func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()

	// Google API 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(strings.ToLower(errMsg), "overloaded") {
		return true
	}

	// 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(strings.ToLower(errMsg), "resource exhausted") {
		return true
	}

	// 500 Internal Error (occasional Gemini crashes)
	if strings.Contains(errMsg, "500") || strings.Contains(strings.ToLower(errMsg), "internal error") {
		return true
	}

	return false
}
