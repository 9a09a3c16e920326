// entry.go - metadata record for one filesystem object
//
// (c) 2024- Sudhi Herle <sudhi@herle.net>
// Portions (c) 2026 the duet authors
//
// Licensing Terms: GPLv2
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim is made to its
// suitability for any purpose.
//
// Adapted from go-fio's info.go: a normalized, marshalable stat record,
// trimmed to the fields duet's reconciler actually compares (no xattr,
// uid/gid, dev/rdev, nlink, atime/ctime) and extended with a path-less
// content fingerprint (Checksum). Scan leaves Checksum zero, and neither
// side of a sync fills it in afterwards.
package duet

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// Entry is a metadata record for a single filesystem object, as
// described by a Scan. Two Entry values with the same Path are
// considered to describe "the same" object across two points in time
// or across the two sides of a profile.
type Entry struct {
	Path     string
	Size     int64
	Mtime    int64 // whole seconds since the epoch
	Ino      uint64
	Mode     fs.FileMode // permission bits only (no file-type bits)
	Target   string      // symlink target; "" unless IsSymlink
	IsDir    bool
	Checksum uint32 // Adler-32 of file contents; 0 for non-files or not yet computed
}

// IsSymlink reports whether e describes a symbolic link.
func (e *Entry) IsSymlink() bool {
	return len(e.Target) > 0
}

// IsRegular reports whether e describes a plain file (not a dir, not a symlink).
func (e *Entry) IsRegular() bool {
	return !e.IsDir && !e.IsSymlink()
}

func (e *Entry) String() string {
	switch {
	case e.IsDir:
		return fmt.Sprintf("%s/ (mode=%s mtime=%d)", e.Path, e.Mode, e.Mtime)
	case e.IsSymlink():
		return fmt.Sprintf("%s -> %s", e.Path, e.Target)
	default:
		return fmt.Sprintf("%s (size=%d mtime=%d mode=%s)", e.Path, e.Size, e.Mtime, e.Mode)
	}
}

// sameType reports whether e and o have the same fundamental type
// (dir, symlink or regular file) regardless of any other attribute.
func (e *Entry) sameType(o *Entry) bool {
	return e.IsDir == o.IsDir && e.IsSymlink() == o.IsSymlink()
}

// equivalent implements the equivalence relation used by entry-diff:
// same is_dir, same target; for symlinks nothing else is compared (mode
// is ignored); everything else also needs the same mode. If both sides
// then carry a nonzero checksum, checksum equality alone decides;
// otherwise dirs are equivalent and non-dirs additionally need the same
// size, mtime and ino.
func (e *Entry) equivalent(o *Entry) bool {
	if e.IsDir != o.IsDir || e.Target != o.Target {
		return false
	}

	if e.IsSymlink() {
		return true
	}

	if e.Mode != o.Mode {
		return false
	}

	if e.Checksum != 0 && o.Checksum != 0 {
		return e.Checksum == o.Checksum
	}

	if e.IsDir {
		return true
	}

	return e.Size == o.Size && e.Mtime == o.Mtime && e.Ino == o.Ino
}

// SortEntries sorts a slice of Entry in place by Path, establishing the
// strict ordering every producer (scanner, snapshot store) must return.
func SortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Path < es[j].Path })
}

// Base returns the basename of e's path.
func (e *Entry) Base() string {
	return filepath.Base(e.Path)
}

const entryMarshalVersion byte = 1

// MarshalSize returns the number of bytes Marshal will produce for e.
func (e *Entry) MarshalSize() int {
	// version(1) + size(8) + mtime(8) + ino(8) + mode(4) + checksum(4) + isdir(1)
	// + path (4-prefix + bytes) + target (4-prefix + bytes)
	return 1 + 8 + 8 + 8 + 4 + 4 + 1 + 4 + len(e.Path) + 4 + len(e.Target)
}

// MarshalTo encodes e into b, which must be at least MarshalSize(e) bytes.
func (e *Entry) MarshalTo(b []byte) (int, error) {
	sz := e.MarshalSize()
	if len(b) < sz {
		return 0, fmt.Errorf("entry: marshal buf too small: %w", ErrTooSmall)
	}

	b[0], b = entryMarshalVersion, b[1:]
	b = enc64(b, e.Size)
	b = enc64(b, e.Mtime)
	b = enc64(b, e.Ino)
	b = enc32(b, uint32(e.Mode))
	b = enc32(b, e.Checksum)
	if e.IsDir {
		b[0] = 1
	} else {
		b[0] = 0
	}
	b = b[1:]
	b = encstr(b, e.Path)
	b = encstr(b, e.Target)

	return sz, nil
}

// Unmarshal decodes an Entry from b, returning the number of bytes consumed.
func (e *Entry) Unmarshal(b []byte) (int, error) {
	orig := len(b)
	if len(b) < 1 {
		return 0, fmt.Errorf("entry: unmarshal: %w", ErrTooSmall)
	}

	var ver byte
	ver, b = b[0], b[1:]
	if ver != entryMarshalVersion {
		return 0, fmt.Errorf("entry: unsupported version %d", ver)
	}

	if len(b) < 8+8+8+4+4+1 {
		return 0, fmt.Errorf("entry: unmarshal: %w", ErrTooSmall)
	}

	b, e.Size = dec64[int64](b)
	b, e.Mtime = dec64[int64](b)
	b, e.Ino = dec64[uint64](b)

	var mode uint32
	b, mode = dec32[uint32](b)
	e.Mode = fs.FileMode(mode)

	b, e.Checksum = dec32[uint32](b)

	e.IsDir = b[0] == 1
	b = b[1:]

	var err error
	b, e.Path, err = decstr(b)
	if err != nil {
		return 0, err
	}
	b, e.Target, err = decstr(b)
	if err != nil {
		return 0, err
	}

	return orig - len(b), nil
}
