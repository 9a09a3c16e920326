package duet

import (
	"errors"
	"testing"
)

func conflictAction(path string) Action {
	return Action{
		Kind: ActionConflict,
		L:    Change{Kind: Added, New: Entry{Path: path, Size: 1}},
		R:    Change{Kind: Added, New: Entry{Path: path, Size: 2}},
	}
}

func TestHasConflicts(t *testing.T) {
	if HasConflicts([]Action{{Kind: ActionLocal}}) {
		t.Error("no conflicts expected")
	}
	if !HasConflicts([]Action{conflictAction("a")}) {
		t.Error("expected a conflict")
	}
}

func TestResolveBatch(t *testing.T) {
	actions := []Action{conflictAction("a")}
	if ResolveBatch(actions, false) {
		t.Error("batch without force should not resolve a conflict")
	}
	if !ResolveBatch(actions, true) {
		t.Error("batch with force should proceed despite a conflict")
	}
	if !ResolveBatch([]Action{{Kind: ActionLocal}}, false) {
		t.Error("no conflicts should always proceed")
	}
}

func TestResolveInteractiveChoices(t *testing.T) {
	actions := []Action{conflictAction("a"), conflictAction("b"), {Kind: ActionLocal}}

	choices := map[string]ResolveChoice{"a": ChooseLocal, "b": ChooseSkip}
	resolved, aborted, err := ResolveInteractive(actions, func(a Action) (ResolveChoice, error) {
		return choices[a.Path()], nil
	})
	if err != nil {
		t.Fatalf("ResolveInteractive: %s", err)
	}
	if aborted {
		t.Fatal("should not have aborted")
	}
	if resolved[0].Kind != ActionResolvedRemote {
		t.Errorf("choosing local: got %s, want ActionResolvedRemote", resolved[0].Kind)
	}
	if resolved[0].Effective != resolved[0].L {
		t.Errorf("ChooseLocal should set Effective to L")
	}
	if resolved[1].Kind != ActionConflict {
		t.Errorf("choosing skip: got %s, want ActionConflict unchanged", resolved[1].Kind)
	}
	if resolved[2].Kind != ActionLocal {
		t.Errorf("non-conflict action should pass through unchanged")
	}
}

func TestResolveInteractiveAbort(t *testing.T) {
	actions := []Action{conflictAction("a")}
	_, aborted, err := ResolveInteractive(actions, func(a Action) (ResolveChoice, error) {
		return ChooseAbort, nil
	})
	if err != nil {
		t.Fatalf("ResolveInteractive: %s", err)
	}
	if !aborted {
		t.Fatal("expected aborted=true")
	}
}

func TestResolveInteractivePromptError(t *testing.T) {
	actions := []Action{conflictAction("a")}
	wantErr := errors.New("boom")
	_, _, err := ResolveInteractive(actions, func(a Action) (ResolveChoice, error) {
		return 0, wantErr
	})
	if err == nil {
		t.Fatal("expected an error from a failing prompt")
	}
}
