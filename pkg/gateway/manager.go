package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"axon/pkg/llm"
	"axon/pkg/monitor"
)

// Manager owns all registered channels and routes messages between them
// and the core handler. It implements api.ChannelContext, so channels
// reply through it rather than holding handler references.
type Manager struct {
	channels      map[string]Channel
	msgHandler    MessageHandler
	monitor       monitor.Monitor
	channelBuffer int
	mu            sync.RWMutex
}

// NewManager creates an empty gateway manager.
func NewManager() *Manager {
	return &Manager{
		channels:      make(map[string]Channel),
		channelBuffer: 100,
	}
}

// SetChannelBuffer sets the internal stream buffer size.
func (g *Manager) SetChannelBuffer(size int) {
	if size > 0 {
		g.channelBuffer = size
	}
}

// SetMessageHandler sets the core message processing logic.
func (g *Manager) SetMessageHandler(handler MessageHandler) {
	g.msgHandler = handler
}

// SetMonitor attaches a traffic monitor.
func (g *Manager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register adds a channel, replacing any previous one with the same ID.
func (g *Manager) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel retrieves a registered channel.
func (g *Manager) GetChannel(id string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll starts every registered channel, passing the manager itself as
// the channel context.
func (g *Manager) StartAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll stops every registered channel.
func (g *Manager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
}

// SendReply routes a complete reply back to the originating channel.
func (g *Manager) SendReply(session SessionContext, content string) error {
	slog.Debug("Gateway reply", "channel", session.ChannelID, "user", session.Username)

	if g.monitor != nil {
		g.monitor.OnMessage(monitor.MonitorMessage{
			Timestamp:   time.Now(),
			MessageType: "ASSISTANT",
			ChannelID:   session.ChannelID,
			Username:    session.Username,
			Content:     content,
		})
	}

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	return c.Send(session, content)
}

// SendSignal forwards a control signal (thinking markers, tool phases) to
// channels that support it. Non-signaling channels ignore it silently.
func (g *Manager) SendSignal(session SessionContext, signal string) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	if sc, ok := c.(SignalingChannel); ok {
		slog.Debug("Gateway signal", "channel", session.ChannelID, "signal", signal)
		return sc.SendSignal(session, signal)
	}

	return nil
}

// StreamReply routes an incremental reply stream back to the originating
// channel. The stream is wrapped so the monitor receives the assembled
// text once the stream closes.
func (g *Manager) StreamReply(session SessionContext, blocks <-chan llm.ContentBlock) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	wrapped := make(chan llm.ContentBlock, g.channelBuffer)
	var fullContent string

	go func() {
		defer close(wrapped)
		for block := range blocks {
			if block.Type == llm.BlockTypeText {
				fullContent += block.Text
			}
			wrapped <- block
		}
		if fullContent != "" && g.monitor != nil {
			g.monitor.OnMessage(monitor.MonitorMessage{
				Timestamp:   time.Now(),
				MessageType: "ASSISTANT",
				ChannelID:   session.ChannelID,
				Username:    session.Username,
				Content:     fullContent,
			})
		}
	}()

	return c.Stream(session, wrapped)
}

// OnMessage implements api.ChannelContext: it receives an incoming
// message from a channel and forwards it to the core handler.
func (g *Manager) OnMessage(channelID string, msg *UnifiedMessage) {
	slog.Info("Gateway received message",
		"channel", channelID, "user", msg.Session.Username, "user_id", msg.Session.UserID)

	if g.monitor != nil {
		g.monitor.OnMessage(monitor.MonitorMessage{
			Timestamp:   time.Now(),
			MessageType: "USER",
			ChannelID:   channelID,
			Username:    msg.Session.Username,
			Content:     msg.Content,
		})
	}

	if g.msgHandler != nil {
		g.msgHandler(msg)
	} else {
		slog.Warn("No message handler set")
	}
}
