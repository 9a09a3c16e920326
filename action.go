// action.go - reconciliation decision pairing local and remote changes
//
// Grounded in original_source/src/actions.rs (Action::create's sorted
// pairing of local/remote changes), extended with
// Identical/ResolvedLocal/ResolvedRemote variants to carry a resolved
// conflict's effective change through to the apply engine.
package duet

import (
	"fmt"
	"sort"
)

// ActionKind tags which variant an Action holds.
type ActionKind int

const (
	ActionLocal ActionKind = iota
	ActionRemote
	ActionConflict
	ActionResolvedLocal
	ActionResolvedRemote
	ActionIdentical
)

func (k ActionKind) String() string {
	switch k {
	case ActionLocal:
		return "Local"
	case ActionRemote:
		return "Remote"
	case ActionConflict:
		return "Conflict"
	case ActionResolvedLocal:
		return "ResolvedLocal"
	case ActionResolvedRemote:
		return "ResolvedRemote"
	case ActionIdentical:
		return "Identical"
	default:
		return "unknown"
	}
}

// Action is a closed sum type over the reconciliation outcomes of a
// change-pair merge. Local/Remote populate C; Identical populates C (the
// local-side change) and R (the remote-side change); Conflict populates
// L and R; ResolvedLocal/ResolvedRemote populate L, R and Effective.
type Action struct {
	Kind      ActionKind
	C         Change // Local, Remote, Identical: the change to act on (for Identical, the local-side change)
	R         Change // Identical's remote-side change; Conflict/Resolved*'s remote change
	L         Change // Conflict/Resolved*'s local change
	Effective Change // ResolvedLocal/ResolvedRemote: the change to apply on the losing side
}

// Path returns the path an action concerns.
func (a Action) Path() string {
	switch a.Kind {
	case ActionLocal, ActionRemote, ActionIdentical:
		return a.C.Path()
	default:
		return a.L.Path()
	}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionLocal:
		return fmt.Sprintf("<--- %s", a.C)
	case ActionRemote:
		return fmt.Sprintf("---> %s", a.C)
	case ActionConflict:
		return fmt.Sprintf("<-?-> %s", a.L)
	case ActionResolvedLocal:
		return fmt.Sprintf("<-R- %s", a.Effective)
	case ActionResolvedRemote:
		return fmt.Sprintf("-R-> %s", a.Effective)
	default:
		return fmt.Sprintf("<==> %s", a.C)
	}
}

// newAction pairs an optional local change and an optional remote
// change at one path. Exactly one of lc/rc being nil corresponds to a
// one-sided update; both present means Identical or Conflict depending
// on Same(lc,rc); both nil is invalid and returns false.
//
// Naming mirrors the original's Action::create: a change observed only
// on the Local side must be pushed outward, so it becomes an
// Action.Remote; a change observed only on the Remote side must be
// pulled inward, so it becomes an Action.Local.
func newAction(lc, rc *Change) (Action, bool) {
	switch {
	case lc != nil && rc == nil:
		return Action{Kind: ActionRemote, C: *lc}, true
	case lc == nil && rc != nil:
		return Action{Kind: ActionLocal, C: *rc}, true
	case lc != nil && rc != nil:
		if Same(*lc, *rc) {
			return Action{Kind: ActionIdentical, C: *lc, R: *rc}, true
		}
		return Action{Kind: ActionConflict, L: *lc, R: *rc}, true
	default:
		return Action{}, false
	}
}

// DiffChanges merges two Path-sorted Change slices (local, remote) into
// a Path-sorted Action slice via a change-pair merge.
func DiffChanges(local, remote []Change) []Action {
	var out []Action
	i, j := 0, 0
	for i < len(local) || j < len(remote) {
		switch {
		case j >= len(remote) || (i < len(local) && local[i].Path() < remote[j].Path()):
			a, _ := newAction(&local[i], nil)
			out = append(out, a)
			i++
		case i >= len(local) || remote[j].Path() < local[i].Path():
			a, _ := newAction(nil, &remote[j])
			out = append(out, a)
			j++
		default:
			a, _ := newAction(&local[i], &remote[j])
			out = append(out, a)
			i++
			j++
		}
	}
	return out
}

// Reverse swaps an action list from the initiator's point of view to
// the peer's: Local and Remote trade places, Conflict's L/R swap (and
// its label becomes meaningless to the peer so it is preserved as-is
// for the peer to resolve independently), ResolvedLocal/ResolvedRemote
// trade places, and Identical is symmetric. This is what set_actions
// sends to the remote peer, which applies it directly.
//
// Reverse(Reverse(actions)) == actions because every case here is its
// own involution.
func Reverse(actions []Action) []Action {
	out := make([]Action, len(actions))
	for i, a := range actions {
		switch a.Kind {
		case ActionLocal:
			out[i] = Action{Kind: ActionRemote, C: a.C}
		case ActionRemote:
			out[i] = Action{Kind: ActionLocal, C: a.C}
		case ActionConflict:
			out[i] = Action{Kind: ActionConflict, L: a.R, R: a.L}
		case ActionResolvedLocal:
			out[i] = Action{Kind: ActionResolvedRemote, L: a.R, R: a.L, Effective: a.Effective}
		case ActionResolvedRemote:
			out[i] = Action{Kind: ActionResolvedLocal, L: a.R, R: a.L, Effective: a.Effective}
		case ActionIdentical:
			out[i] = Action{Kind: ActionIdentical, C: a.R, R: a.C}
		}
	}
	return out
}

// SortActions sorts actions by Path, the ordering Pass 1 of the apply
// engine requires.
func SortActions(actions []Action) {
	sort.Slice(actions, func(i, j int) bool { return actions[i].Path() < actions[j].Path() })
}
