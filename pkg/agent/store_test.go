package agent

import (
	"os"
	"path/filepath"
	"testing"

	"axon/pkg/llm"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	st := State{
		Config: Config{ID: "web_global", Model: "m"},
		Messages: []llm.Message{
			llm.NewSystemMessage("sys"),
			llm.NewUserMessage("hi"),
		},
		LastActivity: 42,
	}
	if err := store.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := store.Load("web_global")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("saved state not found")
	}
	if got.Config.Model != "m" || len(got.Messages) != 2 || got.LastActivity != 42 {
		t.Errorf("loaded state = %+v", got)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	_, found, err := store.Load("nobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Error("found a snapshot that was never saved")
	}
}

func TestStoreDisabled(t *testing.T) {
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := store.Save(State{Config: Config{ID: "x"}}); err != nil {
		t.Errorf("Save on disabled store: %v", err)
	}
	_, found, err := store.Load("x")
	if err != nil || found {
		t.Errorf("disabled store Load = found %v, err %v", found, err)
	}
	if err := store.Delete("x"); err != nil {
		t.Errorf("Delete on disabled store: %v", err)
	}
}

func TestStoreSanitizesID(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	id := "web_127.0.0.1:5432/../../etc"
	if err := store.Save(State{Config: Config{ID: id}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("files in state dir = %d, want 1", len(entries))
	}
	if filepath.Dir(filepath.Join(dir, entries[0].Name())) != dir {
		t.Error("state file escaped the store directory")
	}

	// The sanitized name must still round-trip through Load.
	_, found, err := store.Load(id)
	if err != nil || !found {
		t.Errorf("Load with raw id: found %v, err %v", found, err)
	}
}

func TestStoreDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := store.Save(State{Config: Config{ID: "gone"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, found, _ := store.Load("gone")
	if found {
		t.Error("snapshot survives Delete")
	}

	// Deleting a missing snapshot is inert.
	if err := store.Delete("gone"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}
