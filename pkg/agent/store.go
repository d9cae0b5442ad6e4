package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var filenameSafeRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// Store persists agent state snapshots to a directory, one JSON file per
// agent ID. An empty directory disables persistence: Save and Load become
// no-ops so callers need no conditional wiring.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	safeID := filenameSafeRegex.ReplaceAllString(id, "_")
	return filepath.Join(s.dir, fmt.Sprintf("state_%s.json", safeID))
}

// Save writes the snapshot for its agent ID, replacing any previous one.
func (s *Store) Save(st State) error {
	if s.dir == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return os.WriteFile(s.path(st.Config.ID), data, 0644)
}

// Load reads the snapshot for an agent ID. The second return value
// reports whether a snapshot existed.
func (s *Store) Load(id string) (State, bool, error) {
	if s.dir == "" {
		return State{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("failed to read state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false, fmt.Errorf("failed to parse state: %w", err)
	}
	return st, true, nil
}

// Delete removes the snapshot for an agent ID if one exists.
func (s *Store) Delete(id string) error {
	if s.dir == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
