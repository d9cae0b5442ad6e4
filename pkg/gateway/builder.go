package gateway

import (
	"fmt"

	"axon/pkg/api"
	"axon/pkg/config"
	"axon/pkg/monitor"
)

// Builder provides a fluent interface for assembling a Manager with all
// its dependencies. Channels and the handler are pre-built and injected
// as instances; the builder wires and starts them.
type Builder struct {
	gw             *Manager
	monitor        monitor.Monitor
	systemConfig   *config.SystemConfig
	handlerBuilder func(api.MessageResponder) api.MessageProcessor
	channels       []api.Channel
	channelLoader  func(*Manager)
}

// NewBuilder creates a fresh builder with an empty Manager.
func NewBuilder() *Builder {
	return &Builder{
		gw: NewManager(),
	}
}

// WithMonitor injects a monitoring implementation. The monitor is started
// automatically during Build.
func (b *Builder) WithMonitor(m monitor.Monitor) *Builder {
	b.monitor = m
	return b
}

// WithSystemConfig provides technical parameters (buffer sizes and the
// like) applied to the manager during Build.
func (b *Builder) WithSystemConfig(cfg *config.SystemConfig) *Builder {
	b.systemConfig = cfg
	return b
}

// WithChannel adds pre-built channel instances to the gateway.
func (b *Builder) WithChannel(channels ...api.Channel) *Builder {
	b.channels = append(b.channels, channels...)
	return b
}

// WithChannelLoader registers a callback that creates and registers
// channels from configuration. It runs during Build, after pre-built
// channels are registered and before anything starts.
func (b *Builder) WithChannelLoader(loader func(*Manager)) *Builder {
	b.channelLoader = loader
	return b
}

// WithHandler injects the message handler. A handler implementing
// api.ResponderAware gets the gateway injected as its responder.
func (b *Builder) WithHandler(h api.MessageProcessor) *Builder {
	b.handlerBuilder = func(responder api.MessageResponder) api.MessageProcessor {
		if setter, ok := h.(api.ResponderAware); ok {
			setter.SetResponder(responder)
		}
		return h
	}
	return b
}

// Build finalizes the configuration, registers all channels, wires the
// handler, and starts everything. Returns the operational Manager.
func (b *Builder) Build() (*Manager, error) {
	if b.systemConfig != nil {
		b.gw.SetChannelBuffer(b.systemConfig.InternalChannelBuffer)
	}

	if b.monitor != nil {
		b.gw.SetMonitor(b.monitor)
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	for _, c := range b.channels {
		b.gw.Register(c)
	}

	if b.channelLoader != nil {
		b.channelLoader(b.gw)
	}

	if b.handlerBuilder != nil {
		handler := b.handlerBuilder(b.gw)
		if handler != nil {
			b.gw.SetMessageHandler(handler.OnMessage)
		}
	}

	if err := b.gw.StartAll(); err != nil {
		return nil, fmt.Errorf("failed to start channels: %w", err)
	}

	return b.gw, nil
}
