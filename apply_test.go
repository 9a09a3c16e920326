package duet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyOneSidedAdd(t *testing.T) {
	base := t.TempDir()

	entry := Entry{Path: "new.txt", Size: 5, Mtime: 1700000000, Mode: 0644}
	actions := []Action{{Kind: ActionLocal, C: Change{Kind: Added, New: entry}}}
	details := []ChangeDetail{{Kind: DetailContents, Data: []byte("hello")}}

	got, err := ApplyDetailedChanges(base, actions, details, nil)
	if err != nil {
		t.Fatalf("ApplyDetailedChanges: %s", err)
	}
	if len(got) != 1 || got[0].Path != "new.txt" {
		t.Fatalf("got %+v", got)
	}

	data, err := os.ReadFile(filepath.Join(base, "new.txt"))
	if err != nil {
		t.Fatalf("read created file: %s", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q, want hello", data)
	}
}

func TestApplyIdenticalIsNoop(t *testing.T) {
	base := t.TempDir()
	entry := Entry{Path: "same.txt", Size: 3, Mtime: 1}
	c := Change{Kind: Added, New: entry}
	actions := []Action{{Kind: ActionIdentical, C: c, R: c}}

	got, err := ApplyDetailedChanges(base, actions, nil, nil)
	if err != nil {
		t.Fatalf("ApplyDetailedChanges: %s", err)
	}
	if len(got) != 1 || got[0] != entry {
		t.Fatalf("got %+v, want [%+v]", got, entry)
	}
	if _, err := os.Stat(filepath.Join(base, "same.txt")); !os.IsNotExist(err) {
		t.Fatal("Identical action should not touch the filesystem")
	}
}

func TestApplyConflictPreservesOldEntry(t *testing.T) {
	base := t.TempDir()
	old := Entry{Path: "c.txt", Size: 9, Mtime: 1}
	actions := []Action{{
		Kind: ActionConflict,
		L:    Change{Kind: Modified, Old: old, New: Entry{Path: "c.txt", Size: 1}},
		R:    Change{Kind: Modified, Old: old, New: Entry{Path: "c.txt", Size: 2}},
	}}

	got, err := ApplyDetailedChanges(base, actions, nil, []Entry{old})
	if err != nil {
		t.Fatalf("ApplyDetailedChanges: %s", err)
	}
	if len(got) != 1 || got[0] != old {
		t.Fatalf("got %+v, want old entry preserved: %+v", got, old)
	}
}

func TestApplySymlinkToFileSwap(t *testing.T) {
	base := t.TempDir()
	full := filepath.Join(base, "link")
	if err := os.Symlink("somewhere", full); err != nil {
		t.Fatalf("setup symlink: %s", err)
	}

	oldEntry := Entry{Path: "link", Target: "somewhere"}
	newEntry := Entry{Path: "link", Size: 4, Mtime: 1700000000, Mode: 0644}
	actions := []Action{{Kind: ActionLocal, C: Change{Kind: Modified, Old: oldEntry, New: newEntry}}}
	details := []ChangeDetail{{Kind: DetailContents, Data: []byte("data")}}

	got, err := ApplyDetailedChanges(base, actions, details, []Entry{oldEntry})
	if err != nil {
		t.Fatalf("ApplyDetailedChanges: %s", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %+v", got)
	}
	if got[0].IsSymlink() {
		t.Fatal("expected the result to be a regular file, not a symlink")
	}

	fi, err := os.Lstat(full)
	if err != nil {
		t.Fatalf("lstat: %s", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		t.Fatal("symlink was not replaced by a regular file on disk")
	}
}

func TestApplyDirectoryToFileModified(t *testing.T) {
	base := t.TempDir()
	full := filepath.Join(base, "d")
	if err := os.Mkdir(full, 0o755); err != nil {
		t.Fatalf("setup dir: %s", err)
	}

	oldEntry := Entry{Path: "d", IsDir: true, Mode: 0755}
	newEntry := Entry{Path: "d", Size: 3, Mtime: 1700000000, Mode: 0644}
	actions := []Action{{Kind: ActionLocal, C: Change{Kind: Modified, Old: oldEntry, New: newEntry}}}
	details := []ChangeDetail{{Kind: DetailContents, Data: []byte("abc")}}

	got, err := ApplyDetailedChanges(base, actions, details, []Entry{oldEntry})
	if err != nil {
		t.Fatalf("ApplyDetailedChanges: %s", err)
	}
	if len(got) != 1 || got[0].IsDir {
		t.Fatalf("got %+v, want a single regular-file entry", got)
	}

	fi, err := os.Lstat(full)
	if err != nil {
		t.Fatalf("lstat: %s", err)
	}
	if fi.IsDir() {
		t.Fatal("directory was not replaced by a regular file on disk")
	}
}

func TestGetSignaturesAndDetailedChangesRoundTrip(t *testing.T) {
	localBase := t.TempDir()
	remoteBase := t.TempDir()

	if err := os.WriteFile(filepath.Join(localBase, "f.txt"), []byte("local version of the file"), 0o644); err != nil {
		t.Fatalf("setup local file: %s", err)
	}
	if err := os.WriteFile(filepath.Join(remoteBase, "f.txt"), []byte("remote version of the file, longer"), 0o644); err != nil {
		t.Fatalf("setup remote file: %s", err)
	}

	oldEntry := Entry{Path: "f.txt", Size: 10, Mtime: 1}
	newEntry := Entry{Path: "f.txt", Size: 26, Mtime: 2}

	// The remote side's action list, from the remote's own point of
	// view: it is the receiving side for this path.
	remoteActions := []Action{{Kind: ActionLocal, C: Change{Kind: Modified, Old: oldEntry, New: newEntry}}}
	localSigs, err := GetSignatures(remoteBase, remoteActions)
	if err != nil {
		t.Fatalf("GetSignatures: %s", err)
	}
	if len(localSigs) != 1 {
		t.Fatalf("got %d signatures, want 1", len(localSigs))
	}

	// The local side produces outbound content for that same path,
	// diffed against the signature the remote just computed of its own
	// file.
	localActions := []Action{{Kind: ActionRemote, C: Change{Kind: Modified, Old: oldEntry, New: newEntry}}}
	details, err := GetDetailedChanges(localBase, localActions, localSigs, true)
	if err != nil {
		t.Fatalf("GetDetailedChanges: %s", err)
	}
	if len(details) != 1 || details[0].Kind != DetailDiff {
		t.Fatalf("got %+v, want one DetailDiff", details)
	}

	restored, err := restoreToBuffer(filepath.Join(remoteBase, "f.txt"), details[0].Delta)
	if err != nil {
		t.Fatalf("restoreToBuffer: %s", err)
	}
	if string(restored) != "local version of the file" {
		t.Fatalf("restored = %q, want the local file's contents", restored)
	}
}
