package store

import (
	"strings"
	"testing"
)

func TestNewRandomID_PrefixAndLength(t *testing.T) {
	id, err := newRandomID("task")
	if err != nil {
		t.Fatalf("newRandomID: %v", err)
	}
	if !strings.HasPrefix(id, "task-") {
		t.Fatalf("expected task prefix, got %q", id)
	}
	suffix := strings.TrimPrefix(id, "task-")
	if got, want := len(suffix), 8; got != want {
		t.Fatalf("expected suffix len %d, got %d (%q)", want, got, suffix)
	}
	if suffix != strings.ToLower(suffix) {
		t.Fatalf("expected lowercase suffix, got %q", suffix)
	}
}

func TestNewUniqueID_SkipsTakenIDs(t *testing.T) {
	calls := 0
	id, err := newUniqueID("ntf", func(string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	if err != nil {
		t.Fatalf("newUniqueID: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 existence checks; got %d", calls)
	}
	if !strings.HasPrefix(id, "ntf-") {
		t.Fatalf("expected ntf prefix, got %q", id)
	}
}
