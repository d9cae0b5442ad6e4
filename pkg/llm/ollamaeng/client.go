package ollamaeng

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"

	"axon/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client adapts a local Ollama server to the llm.Engine contract.
type Client struct {
	client       *api.Client
	options      map[string]any
	debugEnabled bool

	mu    sync.RWMutex
	model string
}

// NewClient creates an Ollama engine. An empty baseURL falls back to the
// OLLAMA_HOST environment convention.
func NewClient(model string, baseURL string, options map[string]any) (*Client, error) {
	// Custom Transport to ensure no timeouts are imposed by the client;
	// local generation can legitimately take minutes.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 0,
	}

	httpClient := &http.Client{
		Transport: &JSONFixingRoundTripper{Proxied: transport},
		Timeout:   0,
	}

	var client *api.Client
	var err error
	if baseURL != "" {
		u, perr := url.Parse(baseURL)
		if perr != nil {
			return nil, fmt.Errorf("invalid base URL: %w", perr)
		}
		client = api.NewClient(u, httpClient)
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Ollama engine initialized", "model", model, "base_url", baseURL)

	return &Client{
		client:  client,
		model:   model,
		options: options,
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

// Reload verifies the model exists on the server and makes it the active
// model for subsequent completions. Weight loading itself is deferred to
// the first completion; Ollama loads lazily and keeps the model warm.
func (c *Client) Reload(ctx context.Context, model string) error {
	if model == "" {
		model = c.currentModel()
	}
	if model == "" {
		return fmt.Errorf("no model configured")
	}

	if _, err := c.client.Show(ctx, &api.ShowRequest{Model: model}); err != nil {
		return fmt.Errorf("model %q not available: %w", model, err)
	}

	c.mu.Lock()
	c.model = model
	c.mu.Unlock()

	slog.Info("Ollama model ready", "model", model)
	return nil
}

// Complete performs one blocking chat completion.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	model := c.currentModel()
	streamVal := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
		Options:  c.buildOptions(req),
		Tools:    convertTools(req.Tools),
		Stream:   &streamVal,
	}

	comp := &llm.Completion{Content: []llm.ContentBlock{}}

	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Message.Thinking != "" {
			comp.Content = append(comp.Content, llm.NewThinkingBlock(resp.Message.Thinking))
		}
		if resp.Message.Content != "" {
			comp.Content = append(comp.Content, llm.NewTextBlock(resp.Message.Content))
		}
		if len(resp.Message.ToolCalls) > 0 {
			comp.ToolCalls = append(comp.ToolCalls, convertToolCallsBack(resp.Message.ToolCalls)...)
		}
		if resp.Done {
			comp.StopReason = resp.DoneReason
			comp.Usage = &llm.Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				StopReason:       resp.DoneReason,
			}
			llm.LogUsage(model, comp.Usage)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}

// StreamComplete performs one streamed chat completion. The returned
// channel yields incremental chunks and is closed after the final one.
// Initiation failures are reported synchronously; errors after the first
// chunk surface as a fatal error chunk.
func (c *Client) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	model := c.currentModel()
	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error) // Unbuffered to detect if reader is present

	streamVal := true
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
		Options:  c.buildOptions(req),
		Tools:    convertTools(req.Tools),
		Stream:   &streamVal,
	}

	go func() {
		defer close(chunkCh)

		debugger := llm.NewStreamDebugger(ctx, "ollama", c.debugEnabled)
		defer debugger.Close()

		started := false
		var thoughtsCount int

		err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			if data, err := json.Marshal(resp); err == nil {
				debugger.Write(data)
			}

			// First callback indicates success
			if !started {
				started = true
				select {
				case startResultCh <- nil:
				default:
				}
			}

			if resp.Message.Thinking != "" {
				thoughtsCount++
				chunkCh <- llm.NewThinkingChunk(resp.Message.Thinking)
			}

			if resp.Message.Content != "" {
				chunkCh <- llm.NewTextChunk(resp.Message.Content)
			}

			if len(resp.Message.ToolCalls) > 0 {
				chunkCh <- llm.NewToolCallChunk(convertToolCallsBack(resp.Message.ToolCalls)...)
			}

			if resp.Done {
				usage := &llm.Usage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					ThoughtsTokens:   thoughtsCount,
					StopReason:       resp.DoneReason,
				}

				if resp.DoneReason == llm.StopReasonLength {
					slog.Warn("Response truncated due to length", "provider", "ollama")
				}

				chunkCh <- llm.NewFinalChunk(resp.DoneReason, usage)
				llm.LogUsage(model, usage)
			}

			return nil
		})

		if err != nil {
			slog.Error("Stream error", "provider", "ollama", "model", model, "error", err)
			if !started {
				select {
				case startResultCh <- err:
				default:
					chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Error loading model %s: %v", model, err), err, true)
				}
			} else {
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
			}
		} else if !started {
			select {
			case startResultCh <- nil:
			default:
			}
		}
	}()

	// Wait for initialization result
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

// buildOptions merges the static provider options with per-request
// generation parameters. Zero values are treated as unset.
func (c *Client) buildOptions(req llm.CompletionRequest) map[string]any {
	opts := make(map[string]any, len(c.options)+3)
	for k, v := range c.options {
		opts[k] = v
	}
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	}
	if req.TopP != 0 {
		opts["top_p"] = req.TopP
	}
	if req.MaxTokens != 0 {
		opts["num_predict"] = req.MaxTokens
	}
	return opts
}

// convertMessages converts normalized messages to the Ollama API format.
func convertMessages(messages []llm.Message) []api.Message {
	var out []api.Message

	for _, m := range messages {
		var textContent strings.Builder
		var thinkingContent strings.Builder

		for _, block := range m.Content {
			switch block.Type {
			case llm.BlockTypeText:
				textContent.WriteString(block.Text)
			case llm.BlockTypeThinking:
				thinkingContent.WriteString(block.Text)
			}
		}

		// Combine content: add separator if both thinking and text exist
		thinking := thinkingContent.String()
		text := textContent.String()
		var combined string
		if thinking != "" && text != "" {
			combined = thinking + "\n" + text
		} else {
			combined = thinking + text
		}

		msg := api.Message{
			Role:    m.Role,
			Content: combined,
		}

		if m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0 {
			var apiCalls []api.ToolCall
			for _, tc := range m.ToolCalls {
				// api.ToolCallFunctionArguments unmarshals from a JSON object
				var apiArgs api.ToolCallFunctionArguments
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &apiArgs); err != nil {
					slog.Warn("Failed to convert tool arguments for history", "provider", "ollama", "error", err)
				}
				apiCalls = append(apiCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: apiArgs,
					},
				})
			}
			msg.ToolCalls = apiCalls
		}

		if m.Role == llm.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}

		out = append(out, msg)
	}

	return out
}

// convertTools maps tool schemas into []api.Tool through a JSON
// round-trip, which sidesteps the SDK's nested typed parameter structs.
func convertTools(schemas []llm.ToolSchema) []api.Tool {
	if len(schemas) == 0 {
		return nil
	}

	raw := make([]map[string]any, 0, len(schemas))
	for _, s := range schemas {
		raw = append(raw, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        s.Name,
				"description": s.Description,
				"parameters":  s.Parameters,
			},
		})
	}

	data, err := json.Marshal(raw)
	if err != nil {
		slog.Error("Failed to marshal tools", "provider", "ollama", "error", err)
		return nil
	}

	var tools []api.Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		slog.Error("Failed to unmarshal to api.Tool", "provider", "ollama", "error", err)
		return nil
	}
	return tools
}

func convertToolCallsBack(calls []api.ToolCall) []llm.ToolCall {
	var out []llm.ToolCall
	for _, tc := range calls {
		argsB, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			slog.Warn("Failed to marshal tool call arguments", "provider", "ollama", "error", err)
			argsB = []byte("{}")
		}
		out = append(out, llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(argsB),
			},
		})
	}
	return out
}

// IsTransientError implements llm.Engine.
func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	if strings.Contains(strings.ToLower(errMsg), "overloaded") {
		return true
	}

	return false
}

//----------------------------------------------------------------
// JSONFixingRoundTripper - Interceptor that fixes illegal JSON escapes
//----------------------------------------------------------------

// JSONFixingRoundTripper intercepts responses and fixes illegal escapes
// (e.g. \$) that some models emit inside streamed JSON.
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(resp.Header.Get("Content-Type"), "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (j *jsonFixingReadCloser) Read(p []byte) (n int, err error) {
	n, err = j.body.Read(p)
	if n > 0 {
		content := string(p[:n])
		fixed := illegalEscapeRegex.ReplaceAllString(content, "$1")
		if len(fixed) < len(content) {
			// Only single characters are removed, so this is safe at the
			// byte level.
			copy(p, []byte(fixed))
			n = len(fixed)
		}
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
