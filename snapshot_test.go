package duet

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "snap.snp")

	entries := []Entry{
		{Path: "a", Size: 10, Mtime: 100, Mode: 0644},
		{Path: "b/c", Size: 0, Mtime: 200, Mode: 0755, IsDir: true},
		{Path: "sym", Target: "a", Mode: 0777},
	}
	SortEntries(entries)

	if err := SaveSnapshot(path, entries); err != nil {
		t.Fatalf("SaveSnapshot: %s", err)
	}

	got, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %s", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, got[i], entries[i])
		}
	}
}

func TestLoadSnapshotMissingFileIsEmpty(t *testing.T) {
	entries, err := LoadSnapshot(filepath.Join(t.TempDir(), "does-not-exist.snp"))
	if err != nil {
		t.Fatalf("LoadSnapshot of missing file: %s", err)
	}
	if entries != nil {
		t.Fatalf("got %v, want nil", entries)
	}
}

func TestLoadSnapshotBadHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.snp")
	if err := WriteFileAtomic(path, []byte("not a snapshot"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %s", err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Fatal("expected error loading a file with a bad header")
	}
}
