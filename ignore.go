// ignore.go - base-name glob ignore list
//
// Grounded in go-fio/walk.go's Options.Excludes + walkState.exclude
// (path.Match against the basename component), generalized into its
// own reusable type since duet's profile format gives ignore patterns
// their own [ignore] section distinct from the location tree.
package duet

import (
	"path"
)

// Ignore is an ordered list of shell-glob patterns matched against a
// file's base name. Extending matching to full relative paths is left
// for later; only base-name matching is implemented.
type Ignore []string

// Match reports whether base (a file or directory basename, not a full
// path) matches any pattern in ig.
func (ig Ignore) Match(base string) bool {
	for _, pat := range ig {
		if ok, err := path.Match(pat, base); err == nil && ok {
			return true
		}
	}
	return false
}
