package duet

import "testing"

func TestDiffEntriesAddedRemovedModified(t *testing.T) {
	old := []Entry{
		{Path: "a", Size: 1, Mtime: 1},
		{Path: "b", Size: 1, Mtime: 1},
	}
	cur := []Entry{
		{Path: "b", Size: 2, Mtime: 2},
		{Path: "c", Size: 1, Mtime: 1},
	}

	changes := DiffEntries(old, cur)
	if len(changes) != 3 {
		t.Fatalf("got %d changes, want 3: %+v", len(changes), changes)
	}

	byPath := map[string]Change{}
	for _, c := range changes {
		byPath[c.Path()] = c
	}

	if byPath["a"].Kind != Removed {
		t.Errorf("a: got %s, want Removed", byPath["a"].Kind)
	}
	if byPath["b"].Kind != Modified {
		t.Errorf("b: got %s, want Modified", byPath["b"].Kind)
	}
	if byPath["c"].Kind != Added {
		t.Errorf("c: got %s, want Added", byPath["c"].Kind)
	}
}

func TestDiffEntriesNoChange(t *testing.T) {
	es := []Entry{{Path: "a", Size: 1, Mtime: 1, Mode: 0644}}
	if got := DiffEntries(es, es); len(got) != 0 {
		t.Fatalf("identical entries produced changes: %+v", got)
	}
}

func TestSameIgnoresMtimeForDirs(t *testing.T) {
	x := Change{Kind: Added, New: Entry{Path: "d", IsDir: true, Mtime: 1}}
	y := Change{Kind: Added, New: Entry{Path: "d", IsDir: true, Mtime: 2}}
	if !Same(x, y) {
		t.Error("directory adds differing only in mtime should be Same")
	}
}

func TestSameRequiresMtimeForFiles(t *testing.T) {
	x := Change{Kind: Added, New: Entry{Path: "f", Mtime: 1}}
	y := Change{Kind: Added, New: Entry{Path: "f", Mtime: 2}}
	if Same(x, y) {
		t.Error("file adds differing in mtime should not be Same")
	}
}

func TestSameRemovedAlwaysMatches(t *testing.T) {
	x := Change{Kind: Removed, Old: Entry{Path: "f"}}
	y := Change{Kind: Removed, Old: Entry{Path: "f"}}
	if !Same(x, y) {
		t.Error("two Removed changes at the same path should be Same")
	}
}
