package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"axon/pkg/api"
	"axon/pkg/llm"
	"axon/pkg/tools"
	"axon/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxToolRounds bounds the post-tool continuation loop. A model
// that keeps emitting tool calls stops being re-queried after this many
// rounds within a single turn.
const DefaultMaxToolRounds = 8

// Agent orchestrates one conversation against an injected inference
// engine: it owns the transcript, dispatches completion requests
// (streaming or not), executes tool calls returned by the model, and
// publishes lifecycle events to subscribers.
//
// A single turn is in flight at any time; concurrent Chat calls fail
// fast with ErrBusy. Independent Agent instances share nothing.
type Agent struct {
	id       string
	mu       sync.Mutex // Protects cfg, engine, loaded, busy
	cfg      Config
	engine   llm.Engine
	registry api.ToolRegistry
	history  *llm.History
	emitter  *emitter
	loaded   bool
	busy     bool

	maxToolRounds int
}

// New constructs an agent from its config. Tools supplied in the config
// are registered; a system prompt, if present, seeds the transcript with
// a single system message timestamped at construction time. No I/O.
func New(cfg Config) *Agent {
	cfg = cfg.Clone()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	a := &Agent{
		id:            cfg.ID,
		cfg:           cfg,
		registry:      tools.NewRegistry(),
		history:       llm.NewHistory(),
		emitter:       newEmitter(),
		maxToolRounds: DefaultMaxToolRounds,
	}

	for _, t := range cfg.Tools {
		a.registry.Register(t)
	}

	if cfg.SystemPrompt != "" {
		sys := llm.NewSystemMessage(cfg.SystemPrompt)
		sys.ID = utils.GenerateID()
		a.history.Add(sys)
	}

	return a
}

// ID returns the agent's identity. Stable for the agent's lifetime.
func (a *Agent) ID() string {
	return a.id
}

// SetMaxToolRounds overrides the tool-call continuation bound.
func (a *Agent) SetMaxToolRounds(n int) {
	if n > 0 {
		a.maxToolRounds = n
	}
}

// Subscribe registers an event handler and returns its subscription id.
// Dispatch is synchronous and ordered.
func (a *Agent) Subscribe(fn Handler) int {
	return a.emitter.subscribe(fn)
}

// Unsubscribe removes a previously registered handler.
func (a *Agent) Unsubscribe(id int) {
	a.emitter.unsubscribe(id)
}

func (a *Agent) emit(ev Event) {
	ev.AgentID = a.id
	a.emitter.emit(ev)
}

// Loaded reports whether Initialize has completed successfully.
func (a *Agent) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded
}

// Busy reports whether a chat turn is currently in flight.
func (a *Agent) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Config returns a copy of the current configuration.
func (a *Agent) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Clone()
}

// Messages returns a copy of the conversation transcript.
func (a *Agent) Messages() []llm.Message {
	return a.history.Messages()
}

// Initialize injects the inference engine and loads the configured
// model. Fail-fast: a reload failure is reported via an "error" event
// and returned; no retry is attempted at this layer.
func (a *Agent) Initialize(ctx context.Context, engine llm.Engine) error {
	if engine == nil {
		err := fmt.Errorf("nil engine")
		a.emit(Event{Type: EventError, Err: err})
		return err
	}

	a.mu.Lock()
	a.engine = engine
	model := a.cfg.Model
	a.mu.Unlock()

	a.emit(Event{Type: EventModelLoading, Model: model})

	if err := engine.Reload(ctx, model); err != nil {
		err = fmt.Errorf("engine reload failed for model %q: %w", model, err)
		a.emit(Event{Type: EventError, Err: err})
		return err
	}

	a.mu.Lock()
	a.loaded = true
	a.mu.Unlock()

	a.emit(Event{Type: EventInitialized, Model: model})
	return nil
}

// Chat runs one conversation turn end-to-end: append the user message,
// query the engine (streaming or not), execute any tool calls, and
// re-query until the model produces a plain answer. The returned string
// is the final assistant content.
//
// Preconditions: the agent must be initialized and idle. Violations and
// engine failures are reported via an "error" event and returned; tool
// failures are recovered into the transcript and never abort the turn.
func (a *Agent) Chat(ctx context.Context, message string, streaming bool) (string, error) {
	a.mu.Lock()
	if !a.loaded || a.engine == nil {
		a.mu.Unlock()
		a.emit(Event{Type: EventError, Err: ErrNotInitialized})
		return "", ErrNotInitialized
	}
	if a.busy {
		a.mu.Unlock()
		a.emit(Event{Type: EventError, Err: ErrBusy})
		return "", ErrBusy
	}
	a.busy = true
	engine := a.engine
	a.mu.Unlock()

	// Cleared unconditionally, success or failure.
	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	content, err := a.runTurn(ctx, engine, message, streaming)
	if err != nil {
		a.emit(Event{Type: EventError, Err: err})
		return "", err
	}
	return content, nil
}

// runTurn is the bounded request/tool-execution loop. Each iteration
// sends the full transcript to the engine; iterations after the first
// carry no new user message and exist only so the model can observe tool
// results and produce a final answer.
func (a *Agent) runTurn(ctx context.Context, engine llm.Engine, message string, streaming bool) (string, error) {
	maxRounds := a.maxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}

	pending := message
	for round := 0; ; round++ {
		if pending != "" {
			user := llm.NewUserMessage(pending)
			user.ID = utils.GenerateID()
			a.appendMessage(user)
			pending = ""
		}

		req := a.buildRequest()

		var assistant llm.Message
		var err error
		if streaming {
			assistant, err = a.streamOnce(ctx, engine, req)
		} else {
			assistant, err = a.completeOnce(ctx, engine, req)
		}
		if err != nil {
			return "", err
		}

		a.appendMessage(assistant)

		if len(assistant.ToolCalls) == 0 {
			return assistant.TextContent(), nil
		}

		if round >= maxRounds {
			return assistant.TextContent(), fmt.Errorf("tool-call continuation exceeded %d rounds", maxRounds)
		}

		a.executeToolCalls(ctx, assistant.ToolCalls)
	}
}

// buildRequest assembles the completion request from the full transcript
// and the current generation parameters. Tool schemas ride along with an
// "auto" tool choice whenever any tools are registered.
func (a *Agent) buildRequest() llm.CompletionRequest {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	req := llm.CompletionRequest{
		Messages:    a.history.Messages(),
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
	}

	all := a.registry.All()
	if len(all) > 0 {
		schemas := make([]llm.ToolSchema, 0, len(all))
		for _, t := range all {
			schemas = append(schemas, llm.ToolSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			})
		}
		sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
		req.Tools = schemas
		req.ToolChoice = llm.ToolChoiceAuto
	}

	return req
}

// completeOnce performs a single blocking completion.
func (a *Agent) completeOnce(ctx context.Context, engine llm.Engine, req llm.CompletionRequest) (llm.Message, error) {
	comp, err := engine.Complete(ctx, req)
	if err != nil {
		return llm.Message{}, fmt.Errorf("completion failed: %w", err)
	}

	msg := llm.Message{
		ID:        utils.GenerateID(),
		Role:      llm.RoleAssistant,
		Content:   comp.Content,
		ToolCalls: comp.ToolCalls,
		Timestamp: time.Now().Unix(),
	}
	if msg.Content == nil {
		msg.Content = []llm.ContentBlock{}
	}
	return msg, nil
}

// streamOnce consumes one incremental completion stream, accumulating
// text deltas into the assistant message and emitting a streaming-chunk
// event per delta. Tool-call fragments arrive pre-assembled from the
// engine adapter and are appended as-is.
func (a *Agent) streamOnce(ctx context.Context, engine llm.Engine, req llm.CompletionRequest) (llm.Message, error) {
	a.emit(Event{Type: EventStreamingStart})

	chunkCh, err := engine.StreamComplete(ctx, req)
	if err != nil {
		return llm.Message{}, fmt.Errorf("stream initiation failed: %w", err)
	}

	msg := llm.Message{
		ID:        utils.GenerateID(),
		Role:      llm.RoleAssistant,
		Content:   []llm.ContentBlock{},
		Timestamp: time.Now().Unix(),
	}

	for chunk := range chunkCh {
		if chunk.RawError != nil {
			return llm.Message{}, fmt.Errorf("stream failed: %w", chunk.RawError)
		}
		if chunk.Error != "" {
			msg.AddContentBlock(llm.NewErrorBlock(chunk.Error))
		}

		for _, block := range chunk.ContentBlocks {
			msg.AddContentBlock(block)
			if block.Type == llm.BlockTypeText {
				a.emit(Event{Type: EventStreamingChunk, Delta: block.Text})
			}
		}

		if len(chunk.ToolCalls) > 0 {
			msg.ToolCalls = append(msg.ToolCalls, chunk.ToolCalls...)
		}

		if chunk.IsFinal {
			break
		}
	}

	a.emit(Event{Type: EventStreamingEnd})
	return msg, nil
}

// appendMessage commits a message to the transcript and announces it.
func (a *Agent) appendMessage(msg llm.Message) {
	a.history.Add(msg)
	announced := msg.Clone()
	a.emit(Event{Type: EventMessageAdded, Message: &announced})
}

// executeToolCalls resolves and runs every tool call in list order.
// Failures are recovered locally: each call always yields a tool-role
// message referencing its id, and a failing call never aborts the rest
// of the batch.
func (a *Agent) executeToolCalls(ctx context.Context, calls []llm.ToolCall) {
	for _, tc := range calls {
		tc := tc

		tool, ok := a.registry.Get(tc.Name)
		if !ok {
			slog.Error("Unknown tool call", "agent", a.id, "name", tc.Name)
			a.appendToolResult(tc, fmt.Sprintf("Error: unknown tool '%s'", tc.Name))
			continue
		}

		args, err := parseToolArgs(tc.Function.Arguments)
		if err != nil {
			err = fmt.Errorf("failed to parse tool arguments: %w", err)
			slog.Error("Tool argument parse failed", "agent", a.id, "name", tc.Name, "error", err)
			a.appendToolResult(tc, "Error: "+err.Error())
			a.emit(Event{Type: EventToolError, ToolName: tc.Name, ToolCall: &tc, Err: err})
			continue
		}

		slog.Info("Executing tool", "agent", a.id, "name", tc.Name, "args", args)
		result, err := runTool(ctx, tool, args)
		if err != nil {
			err = fmt.Errorf("tool execution failed: %w", err)
			slog.Error("Tool execution error", "agent", a.id, "name", tc.Name, "error", err)
			a.appendToolResult(tc, "Error: "+err.Error())
			a.emit(Event{Type: EventToolError, ToolName: tc.Name, ToolCall: &tc, Err: err})
			continue
		}

		payload, err := json.Marshal(result)
		if err != nil {
			err = fmt.Errorf("tool result not serializable: %w", err)
			slog.Error("Tool result marshal failed", "agent", a.id, "name", tc.Name, "error", err)
			a.appendToolResult(tc, "Error: "+err.Error())
			a.emit(Event{Type: EventToolError, ToolName: tc.Name, ToolCall: &tc, Err: err})
			continue
		}

		a.appendToolResult(tc, string(payload))
		a.emit(Event{Type: EventToolExecuted, ToolName: tc.Name, ToolCall: &tc, Result: string(payload)})
	}
}

// runTool invokes the handler with panic containment, so a misbehaving
// tool degrades to a recoverable execution error.
func runTool(ctx context.Context, tool api.Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Execute(ctx, args)
}

func parseToolArgs(raw string) (map[string]any, error) {
	args := make(map[string]any)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// appendToolResult commits the tool-role message answering one call.
func (a *Agent) appendToolResult(tc llm.ToolCall, content string) {
	a.history.Add(llm.Message{
		ID:         utils.GenerateID(),
		Role:       llm.RoleTool,
		ToolCallID: tc.ID,
		Content:    []llm.ContentBlock{llm.NewTextBlock(content)},
		Timestamp:  time.Now().Unix(),
	})
}

// RegisterTool adds a tool to the agent's registry.
func (a *Agent) RegisterTool(t api.Tool) {
	a.registry.Register(t)
	a.emit(Event{Type: EventToolRegistered, ToolName: t.Name()})
}

// UnregisterTool removes a tool by name. Removing an unknown name is
// silently inert and emits nothing.
func (a *Agent) UnregisterTool(name string) {
	if a.registry.Unregister(name) {
		a.emit(Event{Type: EventToolUnregistered, ToolName: name})
	}
}

// Tools returns the currently registered tools.
func (a *Agent) Tools() []api.Tool {
	return a.registry.All()
}

// UpdateConfig shallow-merges a partial update into the configuration.
func (a *Agent) UpdateConfig(u ConfigUpdate) {
	a.mu.Lock()
	a.cfg.apply(u)
	cfg := a.cfg.Clone()
	a.mu.Unlock()

	a.emit(Event{Type: EventConfigUpdated, Config: &cfg})
}

// ClearHistory removes every message except system messages.
func (a *Agent) ClearHistory() {
	a.history.Clear()
	a.emit(Event{Type: EventHistoryCleared})
}

// Destroy tears the agent down: the engine reference is cleared, the
// agent is marked not-loaded, a final "destroyed" event is delivered,
// and then all listeners are removed. Intended as terminal; no further
// operations are valid afterward (not enforced).
func (a *Agent) Destroy() {
	a.mu.Lock()
	a.engine = nil
	a.loaded = false
	a.mu.Unlock()

	a.emit(Event{Type: EventDestroyed})
	a.emitter.removeAll()
}
