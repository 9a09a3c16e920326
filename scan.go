// scan.go - concurrent filesystem walker restricted by the location tree
//
// Grounded in go-fio/walk.go for the concurrency shape (bounded
// goroutine fan-out over subdirectories, a WaitGroup tracking
// outstanding directory jobs) and in
// original_source/src/scan/mod.rs's DirIterator for the actual
// traversal algorithm: the (parent, from, to) window narrowed on every
// descent, device-boundary enforcement captured once at the root, and
// the restrict-prefix check that still lets the walker open parent
// directories on the way down to a deeply nested inclusion.
//
// Entries collected by concurrent directory jobs land in an
// xsync.MapOf keyed by path rather than behind a single mutex-guarded
// slice, the same concurrent-map idiom go-fio/clone/hardlink.go uses
// to track hardlinks across its own parallel walk; with a fan-out of
// up to Concurrency goroutines all reporting results, a sharded
// lock-free map avoids the single contended mutex a slice append would
// need.
package duet

import (
	"hash/adler32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/puzpuzpuz/xsync/v3"
)

// ScanOptions controls a single Scan invocation.
type ScanOptions struct {
	// Concurrency bounds the number of directories read in parallel.
	// Defaults to 64.
	Concurrency int
	Ignore      Ignore
}

type scanState struct {
	base      string
	dev       uint64
	restrict  string
	locations Locations
	ignore    Ignore
	sem       chan struct{}

	entries *xsync.MapOf[string, Entry]

	errMu sync.Mutex
	errs  []error

	wg sync.WaitGroup
}

// Scan walks base, restricted to the subpath restrict, governed by
// locations, and returns a Path-sorted []Entry. Checksums are left
// zero; neither the peer server nor cmd/duet fills them in afterwards.
func Scan(base, restrict string, locations Locations, opt ScanOptions) ([]Entry, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, &ScanError{Op: "abs", Path: base, Err: err}
	}

	rootFI, err := os.Lstat(absBase)
	if err != nil {
		return nil, &ScanError{Op: "lstat", Path: absBase, Err: err}
	}
	dev, _ := sysDev(rootFI)

	concurrency := opt.Concurrency
	if concurrency <= 0 {
		concurrency = 64
	}

	restrictAbs := filepath.Join(absBase, restrict)

	st := &scanState{
		base:      absBase,
		dev:       dev,
		restrict:  restrictAbs,
		locations: locations.prefixed(absBase),
		ignore:    opt.Ignore,
		sem:       make(chan struct{}, concurrency),
		entries:   xsync.NewMapOf[string, Entry](),
	}

	st.wg.Add(1)
	go st.walkDir(absBase, st.locations.rootWindow())
	st.wg.Wait()

	entries := make([]Entry, 0, st.entries.Size())
	st.entries.Range(func(_ string, e Entry) bool {
		entries = append(entries, e)
		return true
	})
	SortEntries(entries)

	if len(st.errs) > 0 {
		return entries, joinErrors(st.errs)
	}
	return entries, nil
}

func (st *scanState) addErr(err error) {
	st.errMu.Lock()
	st.errs = append(st.errs, err)
	st.errMu.Unlock()
}

func (st *scanState) addEntry(e Entry) {
	st.entries.Store(e.Path, e)
}

// walkDir processes one directory: emits entries for its children that
// the location tree includes and that lie under restrict, and spawns a
// job per subdirectory worth descending into. A counting semaphore
// caps simultaneous open directories.
func (st *scanState) walkDir(dir string, win window) {
	defer st.wg.Done()

	st.sem <- struct{}{}
	names, err := readDirNames(dir)
	<-st.sem
	if err != nil {
		st.addErr(&ScanError{Op: "readdir", Path: dir, Err: err})
		return
	}

	for _, name := range names {
		if st.ignore.Match(name) {
			continue
		}

		full := filepath.Join(dir, name)
		fi, err := os.Lstat(full)
		if err != nil {
			st.addErr(&ScanError{Op: "lstat", Path: full, Err: err})
			continue
		}

		sameDev := func() bool { d, ok := sysDev(fi); return ok && d == st.dev }()

		if fi.IsDir() && sameDev {
			if hasPathPrefix(full, st.restrict) || hasPathPrefix(st.restrict, full) {
				childWin := st.locations.narrow(full, win)
				skip := childWin.hasNoDescendants() && !st.locations[childWin.parent].Include
				if !skip {
					st.wg.Add(1)
					go st.walkDir(full, childWin)
				}
			}
		}

		gov := st.locations.governs(full, win)
		if !gov.Include {
			continue
		}
		if !hasPathPrefix(full, st.restrict) || !sameDev {
			continue
		}
		if isSpecial(fi.Mode()) {
			continue
		}

		e, err := entryFromStat(st.base, full, fi)
		if err != nil {
			st.addErr(&ScanError{Op: "stat", Path: full, Err: err})
			continue
		}
		st.addEntry(e)
	}
}

func isSpecial(m os.FileMode) bool {
	return m&(os.ModeDevice|os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0
}

func entryFromStat(base, full string, fi os.FileInfo) (Entry, error) {
	rel, err := filepath.Rel(base, full)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{
		Path:  rel,
		IsDir: fi.IsDir(),
		Mode:  permBits(fi.Mode()),
	}

	if ino, ok := sysIno(fi); ok {
		e.Ino = ino
	}

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(full)
		if err != nil {
			return Entry{}, err
		}
		e.Target = target
	case fi.Mode().IsRegular():
		e.Size = fi.Size()
		e.Mtime = fi.ModTime().Unix()
	default:
		e.Mtime = fi.ModTime().Unix()
	}

	return e, nil
}

// permBits keeps only the POSIX permission + setuid/gid/sticky bits,
// dropping the file-type bits os.FileMode otherwise carries alongside
// them.
func permBits(m os.FileMode) os.FileMode {
	return m & (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky)
}

func sysDev(fi os.FileInfo) (uint64, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Dev), true
}

func readDirNames(dir string) ([]string, error) {
	fd, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	names, err := fd.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return &ScanError{Op: "scan", Path: "", Err: fmtErrorString(msg)}
}

type fmtErrorString string

func (e fmtErrorString) Error() string { return string(e) }

// ChecksumFile computes the Adler-32 checksum of a file's full
// contents, the value Entry.Checksum holds. Neither Scan nor the sync
// driver calls it, so scanned entries keep a zero checksum. This is a
// plain one-shot digest, not a rolling window, so the standard
// library's hash/adler32 (unlike rollingAdler32 in adler32.go) is
// sufficient here.
func ChecksumFile(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := adler32.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}
