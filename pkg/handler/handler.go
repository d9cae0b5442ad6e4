package handler

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"axon/pkg/agent"
	"axon/pkg/api"
	"axon/pkg/config"
	"axon/pkg/llm"
	"axon/pkg/tools"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ChatHandler bridges the gateway and the agent layer. It keeps one
// agent per conversation, lazily initialized against the shared engine,
// translates agent events into channel traffic, and persists agent state
// after every turn.
type ChatHandler struct {
	engine       llm.Engine
	responder    api.MessageResponder
	config       *config.Config
	systemConfig *config.SystemConfig
	store        *agent.Store

	mu     sync.Mutex
	agents map[string]*agent.Agent
}

// New creates a ChatHandler backed by the shared engine and state store.
func New(engine llm.Engine, cfg *config.Config, sysCfg *config.SystemConfig, store *agent.Store) *ChatHandler {
	return &ChatHandler{
		engine:       engine,
		config:       cfg,
		systemConfig: sysCfg,
		store:        store,
		agents:       make(map[string]*agent.Agent),
	}
}

// SetResponder implements api.ResponderAware; the gateway injects itself
// here during assembly.
func (h *ChatHandler) SetResponder(responder api.MessageResponder) {
	h.responder = responder
}

// sessionKey derives the conversation identity. Keyed on channel plus
// chat so a reconnecting client (new UserID, same chat) keeps its agent.
func sessionKey(session api.SessionContext) string {
	return session.ChannelID + "_" + session.ChatID
}

// HistoryFor implements api.HistoryProvider for channels that replay the
// transcript to reconnecting clients. It never creates an agent.
func (h *ChatHandler) HistoryFor(session api.SessionContext) []llm.Message {
	h.mu.Lock()
	a, ok := h.agents[sessionKey(session)]
	h.mu.Unlock()

	if !ok {
		// Fall back to the persisted snapshot, if any.
		st, found, err := h.store.Load(sessionKey(session))
		if err != nil || !found {
			return nil
		}
		return st.Messages
	}
	return a.Messages()
}

// agentFor returns the session's agent, creating and initializing one on
// first contact. A persisted snapshot, when present, is restored before
// initialization.
func (h *ChatHandler) agentFor(ctx context.Context, session api.SessionContext) (*agent.Agent, error) {
	key := sessionKey(session)

	h.mu.Lock()
	defer h.mu.Unlock()

	if a, ok := h.agents[key]; ok {
		return a, nil
	}

	defaults := h.config.Agent
	cfg := agent.Config{
		ID:           key,
		Name:         defaults.Name,
		Model:        defaults.Model,
		Temperature:  defaults.Temperature,
		TopP:         defaults.TopP,
		MaxTokens:    defaults.MaxTokens,
		SystemPrompt: h.config.SystemPrompt,
	}
	if h.systemConfig.EnableTools {
		cfg.Tools = []api.Tool{tools.NewClockTool()}
	}

	a := agent.New(cfg)
	a.SetMaxToolRounds(h.systemConfig.MaxToolRounds)

	if st, found, err := h.store.Load(key); err != nil {
		slog.Warn("Failed to load agent state", "session", key, "error", err)
	} else if found {
		a.RestoreState(st)
		slog.Info("Agent state restored", "session", key, "messages", len(st.Messages))
	}

	if err := a.Initialize(ctx, h.engine); err != nil {
		return nil, err
	}

	h.agents[key] = a
	return a, nil
}

// OnMessage is the primary entry point for incoming user messages. It
// resolves the session's agent, wires a per-turn event bridge to the
// originating channel, runs the chat turn, and persists the result.
func (h *ChatHandler) OnMessage(msg *api.UnifiedMessage) {
	start := time.Now()

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}

	debugID := newDebugID()
	slog.Info("Message received",
		"channel", msg.Session.ChannelID, "user", msg.Session.Username, "debug_id", debugID)

	timeout := time.Duration(h.systemConfig.LLMTimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = context.WithValue(ctx, llm.DebugDirContextKey, debugID)

	a, err := h.agentFor(ctx, msg.Session)
	if err != nil {
		slog.Error("Agent initialization failed", "error", err, "debug_id", debugID)
		h.responder.SendReply(msg.Session, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	// Command messages bypass the model entirely.
	if strings.HasPrefix(content, "/") {
		h.handleCommand(a, msg, content)
		return
	}

	// Early busy check so the per-turn event bridge below is not attached
	// to a turn belonging to another request. Chat's own guard stays
	// authoritative for the race window.
	if a.Busy() {
		h.responder.SendReply(msg.Session, "⚠️ Previous request is still running, please wait.")
		return
	}

	// Thinking indicator if the model is slow to produce the first token
	thinkingDelay := time.Duration(h.systemConfig.ThinkingInitDelayMs) * time.Millisecond
	thinkingTimer := time.AfterFunc(thinkingDelay, func() {
		h.responder.SendSignal(msg.Session, llm.BlockTypeThinking)
	})
	defer thinkingTimer.Stop()

	blockCh := make(chan llm.ContentBlock, h.systemConfig.InternalChannelBuffer)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		if err := h.responder.StreamReply(msg.Session, blockCh); err != nil {
			slog.Error("Failed to stream reply", "error", err, "debug_id", debugID)
		}
	}()

	subID := a.Subscribe(func(ev agent.Event) {
		switch ev.Type {
		case agent.EventStreamingChunk:
			thinkingTimer.Stop()
			blockCh <- llm.NewTextBlock(ev.Delta)

		case agent.EventMessageAdded:
			if h.systemConfig.ShowThinking && ev.Message != nil && ev.Message.Role == llm.RoleAssistant {
				if thinking := ev.Message.ThinkingContent(); thinking != "" {
					blockCh <- llm.NewThinkingBlock(thinking)
				}
			}

		case agent.EventToolExecuted:
			h.responder.SendSignal(msg.Session, "role:system")
			h.streamSystemNote(msg.Session, fmt.Sprintf("🛠️ %s → %s", ev.ToolName, ev.Result))

		case agent.EventToolError:
			h.responder.SendSignal(msg.Session, "role:system")
			h.streamSystemNote(msg.Session, fmt.Sprintf("🛠️ %s failed: %v", ev.ToolName, ev.Err))
		}
	})

	_, chatErr := a.Chat(ctx, content, true)

	a.Unsubscribe(subID)
	close(blockCh)
	<-streamDone

	if chatErr != nil {
		if errors.Is(chatErr, agent.ErrBusy) {
			h.responder.SendReply(msg.Session, "⚠️ Previous request is still running, please wait.")
			return
		}
		slog.Error("Chat turn failed", "error", chatErr, "debug_id", debugID)
		h.responder.SendReply(msg.Session, fmt.Sprintf("❌ Error: %v", chatErr))
		return
	}

	if err := h.store.Save(a.State()); err != nil {
		slog.Error("Failed to persist agent state", "session", a.ID(), "error", err)
	}

	slog.Info("Agent turn finished", "duration", time.Since(start).String(), "debug_id", debugID)
}

// handleCommand executes chat commands that operate on the agent itself
// rather than the model.
//
//	/clear              wipe the conversation (system prompt kept)
//	/config {json}      apply a partial config update
//	/tools              list registered tools
func (h *ChatHandler) handleCommand(a *agent.Agent, msg *api.UnifiedMessage, content string) {
	parts := strings.SplitN(strings.TrimPrefix(content, "/"), " ", 2)
	command := parts[0]

	switch command {
	case "clear":
		a.ClearHistory()
		if err := h.store.Save(a.State()); err != nil {
			slog.Error("Failed to persist agent state", "session", a.ID(), "error", err)
		}
		h.responder.SendReply(msg.Session, "🧹 Conversation cleared.")

	case "config":
		if len(parts) < 2 {
			cfgJSON, _ := json.MarshalIndent(a.Config(), "", "  ")
			h.responder.SendReply(msg.Session, string(cfgJSON))
			return
		}
		var update agent.ConfigUpdate
		if err := json.Unmarshal([]byte(parts[1]), &update); err != nil {
			h.responder.SendReply(msg.Session, fmt.Sprintf("❌ Invalid config update: %v", err))
			return
		}
		a.UpdateConfig(update)
		if err := h.store.Save(a.State()); err != nil {
			slog.Error("Failed to persist agent state", "session", a.ID(), "error", err)
		}
		h.responder.SendReply(msg.Session, "⚙️ Config updated.")

	case "tools":
		all := a.Tools()
		if len(all) == 0 {
			h.responder.SendReply(msg.Session, "No tools registered.")
			return
		}
		var sb strings.Builder
		for _, t := range all {
			fmt.Fprintf(&sb, "• %s - %s\n", t.Name(), t.Description())
		}
		h.responder.SendReply(msg.Session, sb.String())

	default:
		h.responder.SendReply(msg.Session, fmt.Sprintf("❌ Unknown command: /%s", command))
	}
}

// streamSystemNote pushes one out-of-band block to the channel, used for
// tool activity visible in the UI as system bubbles.
func (h *ChatHandler) streamSystemNote(session api.SessionContext, text string) {
	resCh := make(chan llm.ContentBlock, 1)
	resCh <- llm.NewTextBlock(text)
	close(resCh)
	if err := h.responder.StreamReply(session, resCh); err != nil {
		slog.Error("Failed to stream tool result", "error", err)
	}
}

// Shutdown persists every live agent and tears it down.
func (h *ChatHandler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, a := range h.agents {
		if err := h.store.Save(a.State()); err != nil {
			slog.Error("Failed to persist agent state on shutdown", "session", key, "error", err)
		}
		a.Destroy()
		delete(h.agents, key)
	}
}

func newDebugID() string {
	b := make([]byte, 2)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
