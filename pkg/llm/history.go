package llm

import (
	"sync"
)

// History manages an ordered conversation transcript. Mutation is
// append-only except for Clear and Replace.
type History struct {
	messages []Message
	mu       sync.RWMutex
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		messages: make([]Message, 0),
	}
}

// Add appends a message.
func (h *History) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
}

// Messages returns a deep copy of the transcript.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	for i, m := range h.messages {
		cp[i] = m.Clone()
	}
	return cp
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes everything except system messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.messages[:0]
	for _, m := range h.messages {
		if m.Role == RoleSystem {
			kept = append(kept, m)
		}
	}
	h.messages = kept
}

// Replace swaps the whole transcript. Used by state restoration.
func (h *History) Replace(msgs []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = make([]Message, len(msgs))
	for i, m := range msgs {
		h.messages[i] = m.Clone()
	}
}

// EnsureSystemMessage guarantees a system message with the given text is
// present as the very first message, inserting or updating as needed.
func (h *History) EnsureSystemMessage(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) > 0 && h.messages[0].Role == RoleSystem {
		h.messages[0].Content = []ContentBlock{NewTextBlock(text)}
		return
	}
	sys := NewSystemMessage(text)
	h.messages = append([]Message{sys}, h.messages...)
}

// LastActivity returns the maximum message timestamp, or zero when empty.
func (h *History) LastActivity() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var last int64
	for _, m := range h.messages {
		if m.Timestamp > last {
			last = m.Timestamp
		}
	}
	return last
}
