package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"axon/pkg/api"
	"axon/pkg/llm"
)

// scriptedEngine replays canned completions and streams in order. When
// the script is exhausted it falls back to defaultResult, or a plain
// "ok" text completion when that is nil too.
type scriptedEngine struct {
	mu            sync.Mutex
	reloadErr     error
	completeErr   error
	results       []*llm.Completion
	streams       [][]llm.StreamChunk
	requests      []llm.CompletionRequest
	defaultResult *llm.Completion
	gate          chan struct{}
}

func (e *scriptedEngine) Reload(ctx context.Context, model string) error {
	return e.reloadErr
}

func (e *scriptedEngine) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	if e.gate != nil {
		<-e.gate
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests = append(e.requests, req)
	if e.completeErr != nil {
		return nil, e.completeErr
	}
	if len(e.results) > 0 {
		r := e.results[0]
		e.results = e.results[1:]
		return r, nil
	}
	if e.defaultResult != nil {
		return e.defaultResult, nil
	}
	return &llm.Completion{Content: []llm.ContentBlock{llm.NewTextBlock("ok")}}, nil
}

func (e *scriptedEngine) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests = append(e.requests, req)
	if e.completeErr != nil {
		return nil, e.completeErr
	}

	var chunks []llm.StreamChunk
	if len(e.streams) > 0 {
		chunks = e.streams[0]
		e.streams = e.streams[1:]
	}

	ch := make(chan llm.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (e *scriptedEngine) IsTransientError(err error) bool { return false }

// echoTool returns its arguments untouched.
type echoTool struct{}

func (echoTool) Name() string               { return "echo" }
func (echoTool) Description() string        { return "echoes its arguments" }
func (echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (echoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return args, nil
}

type panicTool struct{}

func (panicTool) Name() string               { return "boom" }
func (panicTool) Description() string        { return "always panics" }
func (panicTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (panicTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	panic("kaboom")
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *eventRecorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func initializedAgent(t *testing.T, cfg Config, eng *scriptedEngine) *Agent {
	t.Helper()
	a := New(cfg)
	if err := a.Initialize(context.Background(), eng); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return a
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestNewSeedsSystemPrompt(t *testing.T) {
	a := New(Config{SystemPrompt: "be helpful"})

	msgs := a.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 seeded message, got %d", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Errorf("seeded role = %q, want system", msgs[0].Role)
	}
	if msgs[0].TextContent() != "be helpful" {
		t.Errorf("seeded text = %q", msgs[0].TextContent())
	}
	if msgs[0].ID == "" {
		t.Error("seeded system message has no ID")
	}
}

func TestNewGeneratesID(t *testing.T) {
	a := New(Config{})
	b := New(Config{})
	if a.ID() == "" {
		t.Fatal("empty agent ID")
	}
	if a.ID() == b.ID() {
		t.Fatal("two agents share an ID")
	}

	c := New(Config{ID: "fixed"})
	if c.ID() != "fixed" {
		t.Fatalf("explicit ID not honored: %q", c.ID())
	}
}

func TestChatBeforeInitialize(t *testing.T) {
	a := New(Config{SystemPrompt: "sys"})
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	_, err := a.Chat(context.Background(), "hi", false)
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
	if len(a.Messages()) != 1 {
		t.Error("history mutated by rejected chat")
	}
	if rec.count(EventError) != 1 {
		t.Errorf("error events = %d, want 1", rec.count(EventError))
	}
}

func TestInitializeReloadFailure(t *testing.T) {
	eng := &scriptedEngine{reloadErr: errors.New("no such model")}
	a := New(Config{Model: "missing"})
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	err := a.Initialize(context.Background(), eng)
	if err == nil {
		t.Fatal("expected reload failure")
	}
	if !strings.Contains(err.Error(), `"missing"`) {
		t.Errorf("error does not name the model: %v", err)
	}
	if a.Loaded() {
		t.Error("agent reports loaded after failed reload")
	}

	got := rec.types()
	want := []EventType{EventModelLoading, EventError}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestInitializeNilEngine(t *testing.T) {
	a := New(Config{})
	if err := a.Initialize(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
}

func TestChatNonStreaming(t *testing.T) {
	eng := &scriptedEngine{results: []*llm.Completion{
		{Content: []llm.ContentBlock{llm.NewTextBlock("hello there")}},
	}}
	a := initializedAgent(t, Config{SystemPrompt: "sys"}, eng)
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	reply, err := a.Chat(context.Background(), "hi", false)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q", reply)
	}

	msgs := a.Messages()
	if len(msgs) != 3 {
		t.Fatalf("history length = %d, want 3", len(msgs))
	}
	if msgs[1].Role != llm.RoleUser || msgs[2].Role != llm.RoleAssistant {
		t.Errorf("unexpected roles: %q, %q", msgs[1].Role, msgs[2].Role)
	}
	if rec.count(EventMessageAdded) != 2 {
		t.Errorf("message-added events = %d, want 2", rec.count(EventMessageAdded))
	}
	if a.Busy() {
		t.Error("agent still busy after turn")
	}
}

func TestChatBusy(t *testing.T) {
	eng := &scriptedEngine{gate: make(chan struct{})}
	a := initializedAgent(t, Config{}, eng)

	done := make(chan error, 1)
	go func() {
		_, err := a.Chat(context.Background(), "first", false)
		done <- err
	}()

	waitUntil(t, a.Busy)

	_, err := a.Chat(context.Background(), "second", false)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}

	close(eng.gate)
	if err := <-done; err != nil {
		t.Fatalf("first chat failed: %v", err)
	}

	// The rejected call must not have left a user message behind.
	for _, m := range a.Messages() {
		if m.TextContent() == "second" {
			t.Fatal("rejected chat leaked into history")
		}
	}
}

func TestChatStreaming(t *testing.T) {
	eng := &scriptedEngine{streams: [][]llm.StreamChunk{{
		llm.NewTextChunk("Hel"),
		llm.NewTextChunk("lo"),
		llm.NewFinalChunk(llm.StopReasonStop, nil),
	}}}
	a := initializedAgent(t, Config{}, eng)
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	reply, err := a.Chat(context.Background(), "hi", true)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "Hello" {
		t.Errorf("reply = %q, want Hello", reply)
	}

	var deltas []string
	for _, ev := range rec.events {
		if ev.Type == EventStreamingChunk {
			deltas = append(deltas, ev.Delta)
		}
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Errorf("deltas = %v", deltas)
	}

	types := rec.types()
	order := map[EventType]int{}
	for i, ty := range types {
		if _, seen := order[ty]; !seen {
			order[ty] = i
		}
	}
	if !(order[EventStreamingStart] < order[EventStreamingChunk] &&
		order[EventStreamingChunk] < order[EventStreamingEnd]) {
		t.Errorf("streaming event order wrong: %v", types)
	}
}

func TestChatStreamFatalError(t *testing.T) {
	eng := &scriptedEngine{streams: [][]llm.StreamChunk{{
		llm.NewTextChunk("partial"),
		llm.NewErrorChunk("connection dropped", errors.New("connection dropped"), true),
	}}}
	a := initializedAgent(t, Config{}, eng)
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	_, err := a.Chat(context.Background(), "hi", true)
	if err == nil {
		t.Fatal("expected stream failure")
	}
	if rec.count(EventStreamingEnd) != 0 {
		t.Error("streaming-end emitted for an aborted stream")
	}
	if rec.count(EventError) != 1 {
		t.Errorf("error events = %d, want 1", rec.count(EventError))
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	call := llm.ToolCall{
		ID:   "t1",
		Name: "echo",
		Function: llm.FunctionCall{
			Name:      "echo",
			Arguments: `{"x": 1}`,
		},
	}
	eng := &scriptedEngine{results: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{call}},
		{Content: []llm.ContentBlock{llm.NewTextBlock("done")}},
	}}
	a := initializedAgent(t, Config{Tools: []api.Tool{echoTool{}}}, eng)
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	reply, err := a.Chat(context.Background(), "run it", false)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "done" {
		t.Errorf("reply = %q, want done", reply)
	}

	msgs := a.Messages()
	// user, assistant(tool call), tool result, assistant(final)
	if len(msgs) != 4 {
		t.Fatalf("history length = %d, want 4", len(msgs))
	}
	toolMsg := msgs[2]
	if toolMsg.Role != llm.RoleTool || toolMsg.ToolCallID != "t1" {
		t.Errorf("tool message wrong: role=%q id=%q", toolMsg.Role, toolMsg.ToolCallID)
	}
	if !strings.Contains(toolMsg.TextContent(), `"x"`) {
		t.Errorf("tool result payload = %q", toolMsg.TextContent())
	}
	if rec.count(EventToolExecuted) != 1 {
		t.Errorf("tool-executed events = %d, want 1", rec.count(EventToolExecuted))
	}
	if rec.count(EventToolError) != 0 {
		t.Error("unexpected tool-error event")
	}

	// Both engine rounds must have carried the tool schemas.
	if len(eng.requests) != 2 {
		t.Fatalf("engine calls = %d, want 2", len(eng.requests))
	}
	for i, req := range eng.requests {
		if len(req.Tools) != 1 || req.ToolChoice != llm.ToolChoiceAuto {
			t.Errorf("request %d missing tool schemas", i)
		}
	}
}

func TestUnknownToolRecovered(t *testing.T) {
	call := llm.ToolCall{ID: "t1", Name: "nope", Function: llm.FunctionCall{Name: "nope"}}
	eng := &scriptedEngine{results: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{call}},
		{Content: []llm.ContentBlock{llm.NewTextBlock("recovered")}},
	}}
	a := initializedAgent(t, Config{Tools: []api.Tool{echoTool{}}}, eng)
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	reply, err := a.Chat(context.Background(), "go", false)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "recovered" {
		t.Errorf("reply = %q", reply)
	}

	msgs := a.Messages()
	toolMsg := msgs[2]
	if want := "Error: unknown tool 'nope'"; toolMsg.TextContent() != want {
		t.Errorf("tool message = %q, want %q", toolMsg.TextContent(), want)
	}
}

func TestToolPanicRecovered(t *testing.T) {
	call := llm.ToolCall{ID: "t1", Name: "boom", Function: llm.FunctionCall{Name: "boom"}}
	eng := &scriptedEngine{results: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{call}},
		{Content: []llm.ContentBlock{llm.NewTextBlock("survived")}},
	}}
	a := initializedAgent(t, Config{Tools: []api.Tool{panicTool{}}}, eng)
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	reply, err := a.Chat(context.Background(), "go", false)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "survived" {
		t.Errorf("reply = %q", reply)
	}
	if rec.count(EventToolError) != 1 {
		t.Errorf("tool-error events = %d, want 1", rec.count(EventToolError))
	}
	if !strings.Contains(a.Messages()[2].TextContent(), "panicked") {
		t.Errorf("tool message = %q", a.Messages()[2].TextContent())
	}
}

func TestToolRoundLimit(t *testing.T) {
	call := llm.ToolCall{ID: "t1", Name: "echo", Function: llm.FunctionCall{Name: "echo", Arguments: "{}"}}
	eng := &scriptedEngine{defaultResult: &llm.Completion{
		Content:   []llm.ContentBlock{llm.NewTextBlock("again")},
		ToolCalls: []llm.ToolCall{call},
	}}
	a := initializedAgent(t, Config{Tools: []api.Tool{echoTool{}}}, eng)
	a.SetMaxToolRounds(2)

	_, err := a.Chat(context.Background(), "loop", false)
	if err == nil {
		t.Fatal("expected round-limit error")
	}
	if !strings.Contains(err.Error(), "exceeded 2 rounds") {
		t.Errorf("err = %v", err)
	}
}

func TestRegisterUnregisterTool(t *testing.T) {
	a := New(Config{})
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	a.RegisterTool(echoTool{})
	if len(a.Tools()) != 1 {
		t.Fatalf("tools = %d, want 1", len(a.Tools()))
	}
	if rec.count(EventToolRegistered) != 1 {
		t.Error("missing tool-registered event")
	}

	a.UnregisterTool("echo")
	if len(a.Tools()) != 0 {
		t.Error("tool still registered")
	}
	if rec.count(EventToolUnregistered) != 1 {
		t.Error("missing tool-unregistered event")
	}

	// Removing an unknown name is inert.
	a.UnregisterTool("ghost")
	if rec.count(EventToolUnregistered) != 1 {
		t.Error("unregister of unknown tool emitted an event")
	}
}

func TestUpdateConfig(t *testing.T) {
	a := New(Config{Name: "old", Temperature: 0.5})
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	name := "new"
	temp := 0.9
	a.UpdateConfig(ConfigUpdate{Name: &name, Temperature: &temp})

	cfg := a.Config()
	if cfg.Name != "new" || cfg.Temperature != 0.9 {
		t.Errorf("config = %+v", cfg)
	}
	if rec.count(EventConfigUpdated) != 1 {
		t.Error("missing config-updated event")
	}
}

func TestClearHistoryKeepsSystem(t *testing.T) {
	eng := &scriptedEngine{}
	a := initializedAgent(t, Config{SystemPrompt: "sys"}, eng)
	if _, err := a.Chat(context.Background(), "hi", false); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	rec := &eventRecorder{}
	a.Subscribe(rec.record)
	a.ClearHistory()

	msgs := a.Messages()
	if len(msgs) != 1 || msgs[0].Role != llm.RoleSystem {
		t.Errorf("after clear: %d messages, first role %q", len(msgs), msgs[0].Role)
	}
	if rec.count(EventHistoryCleared) != 1 {
		t.Error("missing history-cleared event")
	}
}

func TestDestroy(t *testing.T) {
	eng := &scriptedEngine{}
	a := initializedAgent(t, Config{}, eng)
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	a.Destroy()

	if a.Loaded() {
		t.Error("agent still loaded after destroy")
	}
	if rec.count(EventDestroyed) != 1 {
		t.Error("missing destroyed event")
	}

	// Listeners are gone; later activity must not reach them.
	before := len(rec.types())
	a.ClearHistory()
	if len(rec.types()) != before {
		t.Error("listener received events after destroy")
	}
}
