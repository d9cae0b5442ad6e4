package agent

import (
	"sync"

	"axon/pkg/llm"
)

// EventType identifies one kind of agent lifecycle event.
type EventType string

const (
	EventModelLoading     EventType = "model-loading"
	EventInitialized      EventType = "initialized"
	EventMessageAdded     EventType = "message-added"
	EventStreamingStart   EventType = "streaming-start"
	EventStreamingChunk   EventType = "streaming-chunk"
	EventStreamingEnd     EventType = "streaming-end"
	EventToolRegistered   EventType = "tool-registered"
	EventToolUnregistered EventType = "tool-unregistered"
	EventConfigUpdated    EventType = "config-updated"
	EventHistoryCleared   EventType = "history-cleared"
	EventStateRestored    EventType = "state-restored"
	EventToolExecuted     EventType = "tool-executed"
	EventToolError        EventType = "tool-error"
	EventError            EventType = "error"
	EventDestroyed        EventType = "destroyed"
)

// Event is the explicit payload delivered to subscribers. Only the
// fields relevant to the event type are populated:
//
//	model-loading, initialized    Model
//	message-added                 Message
//	streaming-chunk               Delta
//	tool-registered/-unregistered ToolName
//	tool-executed                 ToolCall, Result
//	tool-error                    ToolCall, Err
//	config-updated                Config
//	error                         Err
type Event struct {
	Type    EventType
	AgentID string

	Model    string
	Message  *llm.Message
	Delta    string
	ToolName string
	ToolCall *llm.ToolCall
	Result   string
	Config   *Config
	Err      error
}

// Handler receives agent events. Dispatch is synchronous and ordered:
// handlers observe events in the exact sequence the agent produced them.
type Handler func(Event)

type listener struct {
	id int
	fn Handler
}

// emitter is a minimal ordered observer list. It deliberately avoids a
// generic emitter base type: the event surface is this one typed enum.
type emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners []listener
}

func newEmitter() *emitter {
	return &emitter{nextID: 1}
}

// subscribe registers a handler and returns its subscription id.
func (e *emitter) subscribe(fn Handler) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners = append(e.listeners, listener{id: id, fn: fn})
	return id
}

// unsubscribe removes the handler with the given id. Unknown ids are
// silently ignored.
func (e *emitter) unsubscribe(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// emit delivers the event to every listener in registration order. The
// listener snapshot is taken under the lock but handlers run outside it,
// so a handler may safely call back into the agent.
func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	snapshot := make([]listener, len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.Unlock()

	for _, l := range snapshot {
		l.fn(ev)
	}
}

// removeAll drops every listener.
func (e *emitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
}
