// location.go - include/exclude rule tree for the scanner
//
// Grounded in original_source/src/scan/location.rs (Location/Locations)
// and src/scan/mod.rs's DirIterator::find_parent_descendants window
// algorithm. There is no go-fio equivalent; this is new code matching
// the rest of the package's style (small sorted-slice type with an
// Ord-style comparator, same shape as Entry's SortEntries).
package duet

import (
	"fmt"
	"sort"
	"strings"
)

// Location is one rule in the include/exclude tree.
type Location struct {
	Path    string
	Include bool
}

func (l Location) String() string {
	if l.Include {
		return "+ " + l.Path
	}
	return "- " + l.Path
}

// Locations is a Path-sorted list of Location rules. The zeroth rule is
// the root "." rule: an implicit Exclude(".") unless the rules name "."
// themselves, so nothing syncs unless named.
type Locations []Location

// NewLocations builds a sorted Locations list with the implicit root
// exclude prepended, unless rules already hold a rule for ".".
func NewLocations(rules []Location) Locations {
	locs := make(Locations, 0, len(rules)+1)
	hasRoot := false
	for _, r := range rules {
		if r.Path == "." {
			hasRoot = true
		}
	}
	if !hasRoot {
		locs = append(locs, Location{Path: ".", Include: false})
	}
	locs = append(locs, rules...)
	sort.Slice(locs, func(i, j int) bool { return locs[i].Path < locs[j].Path })
	return locs
}

// prefixed returns a copy of locs with every path joined under base,
// mirroring Location::prefix in the original.
func (locs Locations) prefixed(base string) Locations {
	out := make(Locations, len(locs))
	for i, l := range locs {
		p := l.Path
		if p == "." {
			p = base
		} else {
			p = base + "/" + p
		}
		out[i] = Location{Path: p, Include: l.Include}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// window is the (parent, from, to) triple threaded down the recursion
// during a location-tree lookup.
type window struct {
	parent   int
	from, to int
}

// rootWindow returns the initial window spanning the whole locations slice.
func (locs Locations) rootWindow() window {
	return window{parent: 0, from: 0, to: len(locs) - 1}
}

// narrow computes the window for a child directory path, given the
// parent directory's window. This is find_parent_descendants from
// original_source/src/scan/mod.rs, ported directly: advance `from` past
// rules no longer prefixed by path, shrink `to` to the contiguous run
// still prefixed by path, then promote `parent` if locations[from] is
// an exact match.
func (locs Locations) narrow(path string, w window) window {
	from, to := w.from, w.to
	parent := w.parent

	for from <= to && !hasPathPrefix(locs[from].Path, path) {
		from++
	}
	if from <= to {
		parentTo := to
		to = from
		for to < parentTo && hasPathPrefix(locs[to+1].Path, path) {
			to++
		}
	}

	if from <= to && locs[from].Path == path {
		parent = from
	}

	return window{parent: parent, from: from, to: to}
}

// governs returns the Location that governs path, given the window
// computed for path's parent directory (find_parent in the original).
func (locs Locations) governs(path string, w window) Location {
	from, to := w.from, w.to
	for from <= to && from < len(locs) {
		if locs[from].Path == path {
			return locs[from]
		}
		from++
	}
	return locs[w.parent]
}

// hasNoDescendants reports whether a window has an empty descendant
// range, used to prune excluded subtrees with nothing included beneath
// them.
func (w window) hasNoDescendants() bool {
	return w.from > w.to
}

// hasPathPrefix reports whether p has prefix as a path-component
// prefix: either p == prefix or p starts with prefix + "/".
func hasPathPrefix(p, prefix string) bool {
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}

// parseLocationLine parses one "+path" or "-path" rule line of a
// profile, returning an error when the line cannot be parsed.
func parseLocationLine(line string) (Location, error) {
	if len(line) < 2 {
		return Location{}, fmt.Errorf("location: line too short: %q", line)
	}
	switch line[0] {
	case '+':
		return Location{Path: strings.TrimPrefix(line[1:], "/"), Include: true}, nil
	case '-':
		return Location{Path: strings.TrimPrefix(line[1:], "/"), Include: false}, nil
	default:
		return Location{}, fmt.Errorf("location: must start with + or -: %q", line)
	}
}
