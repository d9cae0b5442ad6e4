package agent

import (
	"context"
	"testing"

	"axon/pkg/llm"
)

func TestStateSnapshot(t *testing.T) {
	eng := &scriptedEngine{}
	a := initializedAgent(t, Config{ID: "a1", SystemPrompt: "sys", Model: "m"}, eng)
	if _, err := a.Chat(context.Background(), "hi", false); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	st := a.State()
	if st.Config.ID != "a1" || st.Config.Model != "m" {
		t.Errorf("snapshot config = %+v", st.Config)
	}
	if !st.Loaded {
		t.Error("snapshot not marked loaded")
	}
	if st.Streaming {
		t.Error("snapshot marked streaming while idle")
	}
	if len(st.Messages) != 3 {
		t.Fatalf("snapshot messages = %d, want 3", len(st.Messages))
	}
	if st.LastActivity == 0 {
		t.Error("snapshot has zero last activity")
	}

	// Snapshot must not alias the live transcript.
	st.Messages[0].Content[0].Text = "tampered"
	if a.Messages()[0].TextContent() == "tampered" {
		t.Error("snapshot aliases live history")
	}
}

func TestRestoreState(t *testing.T) {
	a := New(Config{ID: "original", SystemPrompt: "sys"})
	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	snapshot := State{
		Config: Config{
			ID:          "other-agent",
			Name:        "restored",
			Model:       "m2",
			Temperature: 0.3,
		},
		Messages: []llm.Message{
			llm.NewSystemMessage("restored sys"),
			llm.NewUserMessage("old question"),
			llm.NewAssistantMessage("old answer"),
		},
		Loaded:    true,
		Streaming: true,
	}

	a.RestoreState(snapshot)

	// Identity is not transferable; everything else follows the snapshot.
	cfg := a.Config()
	if cfg.ID != "original" {
		t.Errorf("agent ID changed to %q", cfg.ID)
	}
	if cfg.Name != "restored" || cfg.Model != "m2" {
		t.Errorf("config not restored: %+v", cfg)
	}

	msgs := a.Messages()
	if len(msgs) != 3 || msgs[1].TextContent() != "old question" {
		t.Errorf("transcript not restored: %d messages", len(msgs))
	}

	// Runtime flags track the live engine, not the snapshot.
	if a.Loaded() {
		t.Error("loaded flag restored from snapshot")
	}
	if a.Busy() {
		t.Error("busy flag restored from snapshot")
	}

	if rec.count(EventStateRestored) != 1 {
		t.Error("missing state-restored event")
	}
}

func TestStateRoundTrip(t *testing.T) {
	eng := &scriptedEngine{}
	a := initializedAgent(t, Config{ID: "rt", SystemPrompt: "sys"}, eng)
	if _, err := a.Chat(context.Background(), "question", false); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	st := a.State()

	b := New(Config{ID: "rt"})
	b.RestoreState(st)
	if err := b.Initialize(context.Background(), eng); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if len(b.Messages()) != len(a.Messages()) {
		t.Fatalf("restored transcript length %d, want %d", len(b.Messages()), len(a.Messages()))
	}

	// The restored agent can continue the conversation.
	if _, err := b.Chat(context.Background(), "follow-up", false); err != nil {
		t.Fatalf("Chat after restore: %v", err)
	}
}
