// resolve.go - conflict resolution policies over an Action list
//
// Grounded in the batch/force/interactive conflict-handling policies
// and the ResolvedLocal/ResolvedRemote action variants. Kept
// separate from cmd/duet so the policies are testable without a
// terminal: the interactive policy takes a prompt function rather than
// reading os.Stdin directly, the same separation go-fio's testsuite
// draws between its CLI (main.go) and the logic it drives.
package duet

import "fmt"

// HasConflicts reports whether any action in the list is an
// unresolved Conflict.
func HasConflicts(actions []Action) bool {
	for _, a := range actions {
		if a.Kind == ActionConflict {
			return true
		}
	}
	return false
}

// ResolveBatch implements the non-interactive -b/-f policies: without
// force, any conflict aborts (the caller
// should check the returned bool and stop before ever calling the
// apply engine); with force, conflicts are left as ActionConflict,
// which the apply engine already treats as a no-op that preserves the
// existing entry.
func ResolveBatch(actions []Action, force bool) (ok bool) {
	if force {
		return true
	}
	return !HasConflicts(actions)
}

// ResolveChoice is one interactive answer to a single conflict.
type ResolveChoice int

const (
	ChooseLocal ResolveChoice = iota
	ChooseRemote
	ChooseSkip
	ChooseAbort
)

// PromptFunc asks the user how to resolve one conflicting Action.
type PromptFunc func(a Action) (ResolveChoice, error)

// ResolveInteractive walks actions in order, asking prompt for every
// Conflict. ChooseLocal keeps the local side authoritative (the action
// becomes ResolvedRemote: remote must adopt the local change);
// ChooseRemote is the mirror (ResolvedLocal: local adopts the remote
// change); ChooseSkip leaves the Conflict as-is; ChooseAbort stops
// immediately and reports aborted=true, the caller's cue to exit with
// the user-abort status.
func ResolveInteractive(actions []Action, prompt PromptFunc) (resolved []Action, aborted bool, err error) {
	out := make([]Action, len(actions))
	for i, a := range actions {
		if a.Kind != ActionConflict {
			out[i] = a
			continue
		}

		choice, err := prompt(a)
		if err != nil {
			return nil, false, fmt.Errorf("resolve: %w", err)
		}

		switch choice {
		case ChooseLocal:
			out[i] = Action{Kind: ActionResolvedRemote, L: a.L, R: a.R, Effective: a.L}
		case ChooseRemote:
			out[i] = Action{Kind: ActionResolvedLocal, L: a.L, R: a.R, Effective: a.R}
		case ChooseSkip:
			out[i] = a
		case ChooseAbort:
			return nil, true, nil
		default:
			return nil, false, fmt.Errorf("resolve: unknown choice %d", choice)
		}
	}
	return out, false, nil
}
