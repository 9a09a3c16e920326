// change.go - per-path delta between two sorted Entry streams
//
// Grounded in original_source/src/scan/change.rs (the Change enum and
// its same()/changes() sorted merge) and go-fio's SortEntries idiom for
// the path-ordering invariant. The sorted two-way merge itself follows
// utils.rs's match_sorted generic, specialized here to Entry since Go
// has no lightweight generic-iterator-adapter idiom as ergonomic as
// Rust's Peekable.
package duet

import "fmt"

// ChangeKind tags which variant a Change holds.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "Added"
	case Removed:
		return "Removed"
	case Modified:
		return "Modified"
	default:
		return "unknown"
	}
}

// Change is a closed sum type: Added(New), Removed(Old), or
// Modified(Old, New). Exactly one shape is populated per Kind; callers
// must switch on Kind exhaustively.
type Change struct {
	Kind ChangeKind
	Old  Entry // valid for Removed, Modified
	New  Entry // valid for Added, Modified
}

// Path returns the path this change concerns.
func (c Change) Path() string {
	switch c.Kind {
	case Removed:
		return c.Old.Path
	default:
		return c.New.Path
	}
}

// IsDir reports whether either side of c is a directory.
func (c Change) IsDir() bool {
	switch c.Kind {
	case Added:
		return c.New.IsDir
	case Removed:
		return c.Old.IsDir
	default:
		return c.Old.IsDir || c.New.IsDir
	}
}

func (c Change) String() string {
	switch c.Kind {
	case Added:
		return fmt.Sprintf("+ %s", c.New.Path)
	case Removed:
		return fmt.Sprintf("- %s", c.Old.Path)
	default:
		return fmt.Sprintf("M %s", c.New.Path)
	}
}

// Same reports whether two changes (one local, one remote, same path)
// represent the identical edit: same kind, and for Added/Modified the
// new side has matching size/mode/target/is_dir, with mtime compared
// only for non-directories (original_source's change.rs::same: "d1.is_dir
// || d1.mtime == d2.mtime").
func Same(x, y Change) bool {
	if x.Kind != y.Kind {
		return false
	}
	switch x.Kind {
	case Removed:
		return true
	case Added, Modified:
		a, b := x.New, y.New
		if a.Size != b.Size || a.Mode != b.Mode || a.Target != b.Target || a.IsDir != b.IsDir {
			return false
		}
		return a.IsDir || a.Mtime == b.Mtime
	default:
		return false
	}
}

// DiffEntries merges two Path-sorted Entry slices (old snapshot, current
// scan) into a Path-sorted Change slice.
func DiffEntries(oldEntries, newEntries []Entry) []Change {
	var out []Change
	i, j := 0, 0
	for i < len(oldEntries) || j < len(newEntries) {
		switch {
		case j >= len(newEntries) || (i < len(oldEntries) && oldEntries[i].Path < newEntries[j].Path):
			out = append(out, Change{Kind: Removed, Old: oldEntries[i]})
			i++
		case i >= len(oldEntries) || newEntries[j].Path < oldEntries[i].Path:
			out = append(out, Change{Kind: Added, New: newEntries[j]})
			j++
		default:
			o, n := oldEntries[i], newEntries[j]
			if !o.equivalent(&n) {
				out = append(out, Change{Kind: Modified, Old: o, New: n})
			}
			i++
			j++
		}
	}
	return out
}
