package agent

import "axon/pkg/llm"

// State is a point-in-time snapshot of an agent: its configuration, the
// full transcript, and the runtime flags at capture time. Snapshots are
// deep copies and never alias live agent state, so a captured State stays
// stable while the agent keeps mutating.
type State struct {
	Config       Config        `json:"config"`
	Messages     []llm.Message `json:"messages"`
	Loaded       bool          `json:"loaded"`
	Streaming    bool          `json:"streaming"`
	LastActivity int64         `json:"last_activity"`
}

// State captures the current snapshot.
func (a *Agent) State() State {
	a.mu.Lock()
	cfg := a.cfg.Clone()
	loaded := a.loaded
	busy := a.busy
	a.mu.Unlock()

	return State{
		Config:       cfg,
		Messages:     a.history.Messages(),
		Loaded:       loaded,
		Streaming:    busy,
		LastActivity: a.history.LastActivity(),
	}
}

// RestoreState replaces the configuration and transcript with the
// snapshot's copies. The agent keeps its own identity regardless of the
// snapshot's ID. Runtime flags are deliberately not restored: the loaded
// flag tracks the live engine, not the snapshot, and restoring an
// in-flight streaming flag would wedge the busy guard with no turn to
// clear it.
func (a *Agent) RestoreState(s State) {
	cfg := s.Config.Clone()

	a.mu.Lock()
	cfg.ID = a.id
	a.cfg = cfg
	a.mu.Unlock()

	a.history.Replace(s.Messages)

	a.emit(Event{Type: EventStateRestored})
}
