package utils

import (
	"testing"
	"time"
)

func TestGenerateIDFormat(t *testing.T) {
	id := GenerateID()
	if len(id) != 24 {
		t.Fatalf("id length = %d, want 24", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("non-hex character %q in id %s", c, id)
		}
	}
}

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestGetTimeFromID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := GenerateID()
	after := time.Now().Add(time.Second)

	got, err := GetTimeFromID(id)
	if err != nil {
		t.Fatalf("GetTimeFromID: %v", err)
	}
	if got.Before(before) || got.After(after) {
		t.Errorf("embedded time %v outside [%v, %v]", got, before, after)
	}
}

func TestGetTimeFromIDInvalid(t *testing.T) {
	if _, err := GetTimeFromID("short"); err == nil {
		t.Error("short id accepted")
	}
	if _, err := GetTimeFromID("zzzzzzzz0000000000000000"); err == nil {
		t.Error("non-hex id accepted")
	}
}

func TestIsOlderThan(t *testing.T) {
	id := GenerateID()
	if IsOlderThan(id, time.Hour) {
		t.Error("fresh id reported old")
	}
	if !IsOlderThan(id, -time.Hour) {
		t.Error("negative threshold not exceeded")
	}
	if IsOlderThan("bogus", time.Nanosecond) {
		t.Error("unparseable id reported old")
	}
}
