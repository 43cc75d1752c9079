package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func statFile(t *testing.T, path string) os.FileInfo {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat %s: %v", path, err)
	}
	return info
}

func TestRenameTracker_ExplicitRenamePaired(t *testing.T) {
	rt := newRenameTracker()
	now := time.Now()

	out := rt.observe(ChangeEvent{Path: "/w/old.go", Kind: KindRename, Time: now}, nil)
	if len(out) != 0 {
		t.Fatalf("Rename-from should be held, got %v", out)
	}
	if !rt.pending() {
		t.Fatal("Tracker should hold the rename-from")
	}

	out = rt.observe(ChangeEvent{Path: "/w/new.go", Kind: KindCreate, Time: now}, nil)
	if len(out) != 1 {
		t.Fatalf("Expected 1 event, got %d: %v", len(out), out)
	}
	if out[0].Kind != KindRename || out[0].Path != "/w/new.go" || out[0].OldPath != "/w/old.go" {
		t.Errorf("Expected rename old.go -> new.go, got %v", out[0])
	}
	if rt.pending() {
		t.Error("Tracker should be empty after pairing")
	}
}

func TestRenameTracker_RemoveThenCreateSameIdentity(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "a.txt")
	newPath := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(oldPath, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	rt := newRenameTracker()
	rt.observe(ChangeEvent{Path: oldPath, Kind: KindModify}, statFile(t, oldPath))

	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatalf("Failed to rename: %v", err)
	}

	if out := rt.observe(ChangeEvent{Path: oldPath, Kind: KindRemove}, nil); len(out) != 0 {
		t.Fatalf("Remove should be held, got %v", out)
	}
	out := rt.observe(ChangeEvent{Path: newPath, Kind: KindCreate}, statFile(t, newPath))
	if len(out) != 1 || out[0].Kind != KindRename || out[0].OldPath != oldPath {
		t.Errorf("Expected merged rename, got %v", out)
	}
}

func TestRenameTracker_RemoveThenUnrelatedCreate(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "a.txt")
	newPath := filepath.Join(dir, "b.txt")
	for _, p := range []string{oldPath, newPath} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}

	rt := newRenameTracker()
	rt.observe(ChangeEvent{Path: oldPath, Kind: KindModify}, statFile(t, oldPath))
	rt.observe(ChangeEvent{Path: oldPath, Kind: KindRemove}, nil)

	out := rt.observe(ChangeEvent{Path: newPath, Kind: KindCreate}, statFile(t, newPath))
	if len(out) != 2 {
		t.Fatalf("Expected remove and create, got %v", out)
	}
	if out[0].Kind != KindRemove || out[0].Path != oldPath {
		t.Errorf("Expected remove of %s first, got %v", oldPath, out[0])
	}
	if out[1].Kind != KindCreate || out[1].Path != newPath {
		t.Errorf("Expected create of %s second, got %v", newPath, out[1])
	}
}

func TestRenameTracker_ExpireEmitsRemove(t *testing.T) {
	rt := newRenameTracker()
	rt.observe(ChangeEvent{Path: "/w/gone.go", Kind: KindRename}, nil)

	out := rt.expire()
	if len(out) != 1 || out[0].Kind != KindRemove || out[0].Path != "/w/gone.go" {
		t.Errorf("Expected remove on expiry, got %v", out)
	}
	if out := rt.expire(); out != nil {
		t.Errorf("Second expire should be empty, got %v", out)
	}
}

func TestRenameTracker_OtherEventFlushesHeld(t *testing.T) {
	rt := newRenameTracker()
	rt.observe(ChangeEvent{Path: "/w/gone.go", Kind: KindRemove}, nil)

	out := rt.observe(ChangeEvent{Path: "/w/other.go", Kind: KindModify}, nil)
	if len(out) != 2 || out[0].Kind != KindRemove || out[1].Kind != KindModify {
		t.Errorf("Expected held remove before modify, got %v", out)
	}
}
