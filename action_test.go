package duet

import "testing"

func TestDiffChangesOneSided(t *testing.T) {
	local := []Change{{Kind: Added, New: Entry{Path: "a"}}}
	remote := []Change{{Kind: Added, New: Entry{Path: "b"}}}

	actions := DiffChanges(local, remote)
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	byPath := map[string]Action{}
	for _, a := range actions {
		byPath[a.Path()] = a
	}
	if byPath["a"].Kind != ActionRemote {
		t.Errorf("local-only change at a: got %s, want ActionRemote", byPath["a"].Kind)
	}
	if byPath["b"].Kind != ActionLocal {
		t.Errorf("remote-only change at b: got %s, want ActionLocal", byPath["b"].Kind)
	}
}

func TestDiffChangesIdenticalAndConflict(t *testing.T) {
	local := []Change{
		{Kind: Added, New: Entry{Path: "same", Size: 1, Mtime: 1}},
		{Kind: Added, New: Entry{Path: "diff", Size: 1, Mtime: 1}},
	}
	remote := []Change{
		{Kind: Added, New: Entry{Path: "same", Size: 1, Mtime: 1}},
		{Kind: Added, New: Entry{Path: "diff", Size: 2, Mtime: 2}},
	}

	actions := DiffChanges(local, remote)
	byPath := map[string]Action{}
	for _, a := range actions {
		byPath[a.Path()] = a
	}
	if byPath["same"].Kind != ActionIdentical {
		t.Errorf("same: got %s, want ActionIdentical", byPath["same"].Kind)
	}
	if byPath["diff"].Kind != ActionConflict {
		t.Errorf("diff: got %s, want ActionConflict", byPath["diff"].Kind)
	}
}

func TestReverseIsInvolution(t *testing.T) {
	actions := []Action{
		{Kind: ActionLocal, C: Change{Kind: Added, New: Entry{Path: "a"}}},
		{Kind: ActionRemote, C: Change{Kind: Added, New: Entry{Path: "b"}}},
		{Kind: ActionConflict,
			L: Change{Kind: Added, New: Entry{Path: "c", Size: 1}},
			R: Change{Kind: Added, New: Entry{Path: "c", Size: 2}}},
		{Kind: ActionResolvedLocal,
			L:         Change{Kind: Added, New: Entry{Path: "d", Size: 1}},
			R:         Change{Kind: Added, New: Entry{Path: "d", Size: 2}},
			Effective: Change{Kind: Added, New: Entry{Path: "d", Size: 2}}},
		{Kind: ActionIdentical,
			C: Change{Kind: Added, New: Entry{Path: "e"}},
			R: Change{Kind: Added, New: Entry{Path: "e"}}},
	}

	once := Reverse(actions)
	twice := Reverse(once)

	for i := range actions {
		if actions[i] != twice[i] {
			t.Errorf("Reverse(Reverse(actions))[%d] = %+v, want %+v", i, twice[i], actions[i])
		}
	}

	if once[0].Kind != ActionRemote {
		t.Errorf("Reverse(ActionLocal) = %s, want ActionRemote", once[0].Kind)
	}
	if once[1].Kind != ActionLocal {
		t.Errorf("Reverse(ActionRemote) = %s, want ActionLocal", once[1].Kind)
	}
	if once[3].Kind != ActionResolvedRemote {
		t.Errorf("Reverse(ActionResolvedLocal) = %s, want ActionResolvedRemote", once[3].Kind)
	}
}

func TestSortActionsByPath(t *testing.T) {
	actions := []Action{
		{Kind: ActionLocal, C: Change{Kind: Added, New: Entry{Path: "z"}}},
		{Kind: ActionLocal, C: Change{Kind: Added, New: Entry{Path: "a"}}},
	}
	SortActions(actions)
	if actions[0].Path() != "a" || actions[1].Path() != "z" {
		t.Fatalf("actions not sorted: %+v", actions)
	}
}
