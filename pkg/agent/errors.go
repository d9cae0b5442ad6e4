package agent

import "errors"

// Sentinel errors for the turn-entry guards. Engine and tool failures are
// wrapped dynamically; these two are the only conditions callers are
// expected to branch on.
var (
	// ErrNotInitialized is returned by Chat before Initialize has
	// completed successfully. The engine is never touched in this case.
	ErrNotInitialized = errors.New("agent not initialized")

	// ErrBusy is returned by Chat while another turn is in flight. At
	// most one concurrent turn per agent is permitted; a second call
	// fails immediately rather than queueing.
	ErrBusy = errors.New("agent busy: chat turn already in flight")
)
