package openaieng

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"axon/pkg/llm"
)

// Client adapts the official OpenAI SDK (chat completions API) to the
// llm.Engine contract. The same adapter serves OpenAI-compatible
// endpoints through a custom base URL.
type Client struct {
	client       *openai.Client
	provider     string
	debugEnabled bool

	mu    sync.RWMutex
	model string
}

// NewClient creates an OpenAI engine. The provider label distinguishes
// OpenAI-compatible backends in logs and debug captures.
func NewClient(provider string, apiKey string, model string, baseURL string) (*Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
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

// Reload verifies the model exists behind the endpoint and makes it the
// active model. Hosted APIs have nothing to preload.
func (c *Client) Reload(ctx context.Context, model string) error {
	if model == "" {
		model = c.currentModel()
	}
	if model == "" {
		return fmt.Errorf("no model configured")
	}

	if _, err := c.client.Models.Get(ctx, model); err != nil {
		return fmt.Errorf("model %q not available: %w", model, err)
	}

	c.mu.Lock()
	c.model = model
	c.mu.Unlock()

	slog.Info("Model verified", "provider", c.provider, "model", model)
	return nil
}

// Complete performs one blocking chat completion.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	model := c.currentModel()
	params := c.buildParams(model, req)

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s", c.provider)
	}

	choice := resp.Choices[0]
	comp := &llm.Completion{
		Content:    []llm.ContentBlock{},
		StopReason: normalizeStopReason(string(choice.FinishReason)),
	}
	if choice.Message.Content != "" {
		comp.Content = append(comp.Content, llm.NewTextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		comp.ToolCalls = append(comp.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	if resp.Usage.TotalTokens > 0 {
		comp.Usage = &llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
			StopReason:       comp.StopReason,
		}
		llm.LogUsage(model, comp.Usage)
	}

	return comp, nil
}

// StreamComplete performs one streamed chat completion. Text deltas are
// forwarded as they arrive; tool calls are assembled by the SDK
// accumulator and emitted once complete.
func (c *Client) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	model := c.currentModel()
	params := c.buildParams(model, req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	chunkCh := make(chan llm.StreamChunk, 100)

	go func() {
		defer close(chunkCh)

		debugger := llm.NewStreamDebugger(ctx, c.provider, c.debugEnabled)
		defer debugger.Close()

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		var lastFinishReason string
		var lastUsage *llm.Usage

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			debugger.WriteString(chunk.RawJSON())

			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				if choice.Delta.Content != "" {
					chunkCh <- llm.NewTextChunk(choice.Delta.Content)
				}
				if choice.FinishReason != "" {
					lastFinishReason = string(choice.FinishReason)
				}
			}

			if chunk.Usage.TotalTokens > 0 {
				lastUsage = &llm.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
		}

		if err := stream.Err(); err != nil {
			slog.Error("Stream error", "provider", c.provider, "model", model, "error", err)
			chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err), err, true)
			return
		}

		// Completed tool calls come from the accumulator, not the deltas.
		if len(acc.Choices) > 0 && len(acc.Choices[0].Message.ToolCalls) > 0 {
			var calls []llm.ToolCall
			for _, tc := range acc.Choices[0].Message.ToolCalls {
				calls = append(calls, llm.ToolCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Function: llm.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
				slog.Debug("Tool call", "provider", c.provider, "name", tc.Function.Name, "id", tc.ID)
			}
			chunkCh <- llm.NewToolCallChunk(calls...)
		}

		reason := normalizeStopReason(lastFinishReason)
		if lastUsage != nil {
			lastUsage.StopReason = reason
			llm.LogUsage(model, lastUsage)
		}
		if reason == llm.StopReasonLength {
			slog.Warn("Response truncated due to length", "provider", c.provider)
		}
		chunkCh <- llm.NewFinalChunk(reason, lastUsage)
	}()

	return chunkCh, nil
}

func (c *Client) buildParams(model string, req llm.CompletionRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: convertMessages(req.Messages),
	}

	if req.Temperature != 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP != 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens != 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	if tools := convertTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
		if req.ToolChoice != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(req.ToolChoice),
			}
		}
	}

	return params
}

func convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(m.TextContent()))
		case llm.RoleUser:
			out = append(out, openai.UserMessage(m.TextContent()))
		case llm.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.TextContent()))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if text := m.TextContent(); text != "" {
				asst.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(text),
				}
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case llm.RoleTool:
			out = append(out, openai.ToolMessage(m.TextContent(), m.ToolCallID))
		}
	}

	return out
}

func convertTools(schemas []llm.ToolSchema) []openai.ChatCompletionToolUnionParam {
	if len(schemas) == 0 {
		return nil
	}

	out := make([]openai.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		params := openai.FunctionParameters{}
		for k, v := range s.Parameters {
			params[k] = v
		}
		out = append(out, openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  params,
			},
		))
	}
	return out
}

// normalizeStopReason converts OpenAI-specific finish_reason values to
// the normalized lowercase format.
func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "", "stop":
		return llm.StopReasonStop
	case "length":
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
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}
