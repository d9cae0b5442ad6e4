package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"axon/pkg/api"
	"axon/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

type WebConfig struct {
	Port int `json:"port"` // Default: 8080
}

type IncomingMessage struct {
	Text string `json:"text"`
}

// SafeConn serializes writes to one websocket connection. Gorilla
// connections do not allow concurrent writers.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// WebChannel serves the browser chat UI over a websocket endpoint. Each
// connection is one session; replies and stream chunks go back as typed
// JSON frames.
type WebChannel struct {
	config      WebConfig
	server      *http.Server
	history     api.HistoryProvider
	connections map[string]*SafeConn // UserID -> WS connection
	mu          sync.RWMutex
}

func NewWebChannel(cfg WebConfig, history api.HistoryProvider) *WebChannel {
	return &WebChannel{
		config:      cfg,
		history:     history,
		connections: make(map[string]*SafeConn),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})

	addr := fmt.Sprintf(":%d", c.config.Port)
	c.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("Web API listening", "port", c.config.Port)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) Stop() error {
	if c.server != nil {
		return c.server.Close()
	}
	return nil
}

func (c *WebChannel) conn(userID string) (*SafeConn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.connections[userID]
	return conn, ok
}

func (c *WebChannel) Send(session api.SessionContext, message string) error {
	conn, ok := c.conn(session.UserID)
	if !ok {
		return fmt.Errorf("web user %s not connected", session.UserID)
	}

	frame := map[string]string{
		"type": llm.BlockTypeText,
		"text": message,
	}
	jsonData, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, jsonData); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"done"}`))
}

// SendSignal implements api.SignalingChannel.
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	conn, ok := c.conn(session.UserID)
	if !ok {
		return fmt.Errorf("web user %s not connected", session.UserID)
	}

	msg := map[string]string{
		"type":  "signal",
		"value": signal,
	}
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, jsonData)
}

// Stream implements api.Channel. Each block becomes one JSON frame; a
// final done frame marks the end of the turn.
func (c *WebChannel) Stream(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	conn, ok := c.conn(session.UserID)
	if !ok {
		return fmt.Errorf("web user %s not connected", session.UserID)
	}

	for block := range blocks {
		msg := map[string]any{
			"type": block.Type,
			"text": block.Text,
		}

		jsonData, err := json.Marshal(msg)
		if err != nil {
			slog.Error("Failed to marshal stream block", "error", err)
			continue
		}

		if err := conn.WriteMessage(websocket.TextMessage, jsonData); err != nil {
			return err
		}
	}

	// Finish flag
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"done"}`))
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS upgrade failed", "error", err)
		return
	}

	conn := &SafeConn{Conn: rawConn}

	// UserID based on remote address; one browser tab, one session
	userID := r.RemoteAddr

	c.mu.Lock()
	c.connections[userID] = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.connections, userID)
		c.mu.Unlock()
		conn.Close()
	}()

	session := api.SessionContext{
		ChannelID: "web",
		UserID:    userID,
		ChatID:    "global",
		Username:  "WebUser",
	}

	c.sendHistory(conn, session)

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var content string
		var incoming IncomingMessage
		if err := json.Unmarshal(msgBytes, &incoming); err == nil && incoming.Text != "" {
			content = incoming.Text
		} else {
			// Plain text fallback for minimal clients
			content = string(msgBytes)
		}

		ctx.OnMessage(c.ID(), &api.UnifiedMessage{
			Session: session,
			Content: content,
		})
	}
}

// sendHistory replays the stored transcript to a newly connected client.
func (c *WebChannel) sendHistory(conn *SafeConn, session api.SessionContext) {
	if c.history == nil {
		return
	}

	messages := c.history.HistoryFor(session)
	if len(messages) == 0 {
		return
	}

	type uiMessage struct {
		Role string `json:"role"`
		Text string `json:"text"`
	}
	uiMsgs := make([]uiMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		text := m.TextContent()
		if text == "" {
			continue
		}
		uiMsgs = append(uiMsgs, uiMessage{Role: m.Role, Text: text})
	}
	if len(uiMsgs) == 0 {
		return
	}

	historyJSON, err := json.Marshal(map[string]any{
		"type": "history",
		"data": uiMsgs,
	})
	if err != nil {
		slog.Error("Failed to marshal history", "error", err)
		return
	}
	conn.WriteMessage(websocket.TextMessage, historyJSON)
}
