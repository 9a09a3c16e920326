// apply.go - two-pass apply engine
//
// Grounded in original_source/src/sync.rs's apply_detailed_changes: a
// forward pass merging old-snapshot entries with the sorted action
// list, mutating the filesystem and deferring every directory-shaped
// change to a second, reverse-order pass so that child removals always
// precede parent rmdir and parent mkdir always precedes child mkdir.
// Metadata finalization (chmod, then a symlink-aware mtime set, then a
// re-stat to capture the realized inode) is the one helper every branch
// of both passes calls.
package duet

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

// ChangeDetailKind tags whether a ChangeDetail carries a full file body
// or a delta to restore against the existing local file.
type ChangeDetailKind int

const (
	DetailContents ChangeDetailKind = iota
	DetailDiff
)

// ChangeDetail is the content payload paired positionally with the
// Local/ResolvedLocal actions that need one.
type ChangeDetail struct {
	Kind  ChangeDetailKind
	Data  []byte // valid iff Kind == DetailContents
	Delta *Delta // valid iff Kind == DetailDiff
}

// needsDetail reports whether change c requires a ChangeDetail to
// apply, and which kind.
func needsDetail(c Change) (ChangeDetailKind, bool) {
	switch c.Kind {
	case Added:
		if c.New.IsRegular() {
			return DetailContents, true
		}
	case Modified:
		if c.New.IsRegular() {
			if c.Old.IsRegular() {
				return DetailDiff, true
			}
			return DetailContents, true
		}
	}
	return 0, false
}

// effectiveChange returns the change a Local-facing action applies
// locally: Local's own change, or ResolvedLocal's chosen Effective.
// This is the receiving side of a path: whatever this side will
// overwrite on disk once content arrives.
func effectiveChange(a Action) (Change, bool) {
	switch a.Kind {
	case ActionLocal:
		return a.C, true
	case ActionResolvedLocal:
		return a.Effective, true
	default:
		return Change{}, false
	}
}

// effectiveChangeOut returns the change a Remote-facing action sends
// outward: Remote's own change, or ResolvedRemote's chosen Effective.
// This is the sending side of a path: the content this side already
// has that the peer needs, produced by get_detailed_changes on
// whichever side is not receiving.
func effectiveChangeOut(a Action) (Change, bool) {
	switch a.Kind {
	case ActionRemote:
		return a.C, true
	case ActionResolvedRemote:
		return a.Effective, true
	default:
		return Change{}, false
	}
}

// GetSignatures computes, in action order, a Signature for every
// action whose effective change needs a Diff detail, answering the
// peer protocol's get_signatures call. The source of each signature is
// the file currently on disk at base, i.e. the version the sender
// should diff against.
//
// Signing is pure read-only I/O against distinct paths, so the actual
// hashing fans out across a WorkPool (workpool.go, adapted from
// go-fio's own worker-pool idiom) instead of running one file at a
// time; each worker writes to its own slot of a pre-sized slice so no
// further synchronization is needed to preserve action order.
func GetSignatures(base string, actions []Action) ([]*Signature, error) {
	type job struct {
		slot int
		path string
	}

	var jobs []job
	for _, a := range actions {
		c, ok := effectiveChange(a)
		if !ok {
			continue
		}
		kind, need := needsDetail(c)
		if !need || kind != DetailDiff {
			continue
		}
		jobs = append(jobs, job{slot: len(jobs), path: c.New.Path})
	}

	sigs := make([]*Signature, len(jobs))
	pool := NewWorkPool[job](0, func(_ int, j job) error {
		p := filepath.Join(base, j.path)
		f, err := os.Open(p)
		if err != nil {
			return &ApplyError{Op: "signature", Path: j.path, Err: err}
		}
		defer f.Close()

		sig, err := Sign(f, DefaultWindow)
		if err != nil {
			return &ApplyError{Op: "signature", Path: j.path, Err: err}
		}
		sigs[j.slot] = sig
		return nil
	})
	for _, j := range jobs {
		pool.Submit(j)
	}
	pool.Close()
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return sigs, nil
}

// GetDetailedChanges produces, in action order, the ChangeDetail for
// every action that needs one, reading the new-side file (the version
// this side has) and, for Diff details, comparing it against the
// matching signature supplied by the peer. It answers the peer
// protocol's get_detailed_changes call. outbound selects which half of
// the action
// list this side is producing content for: false picks the
// Local/ResolvedLocal actions (this side diffing its own file against
// a signature it generated itself, the same-process convenience path),
// true picks the Remote/ResolvedRemote actions (the normal two-peer
// case: this side already holds the content the *other* side's
// receiving action needs, diffed against the signature that other side
// supplied via get_signatures).
func GetDetailedChanges(base string, actions []Action, sigs []*Signature, outbound bool) ([]ChangeDetail, error) {
	selector := effectiveChange
	if outbound {
		selector = effectiveChangeOut
	}

	type job struct {
		slot int
		path string
		kind ChangeDetailKind
		sig  *Signature // set iff kind == DetailDiff
	}

	var jobs []job
	sigIdx := 0
	for _, a := range actions {
		c, ok := selector(a)
		if !ok {
			continue
		}
		kind, need := needsDetail(c)
		if !need {
			continue
		}

		j := job{slot: len(jobs), path: c.New.Path, kind: kind}
		if kind == DetailDiff {
			if sigIdx >= len(sigs) {
				return nil, &ApplyError{Op: "diff", Path: c.New.Path, Err: fmt.Errorf("missing signature")}
			}
			j.sig = sigs[sigIdx]
			sigIdx++
		}
		jobs = append(jobs, j)
	}

	// Reading and diffing are independent per path once the plan above
	// fixes each job's slot and signature, so the actual I/O fans out
	// across a WorkPool the same way GetSignatures does.
	details := make([]ChangeDetail, len(jobs))
	pool := NewWorkPool[job](0, func(_ int, j job) error {
		p := filepath.Join(base, j.path)
		switch j.kind {
		case DetailContents:
			data, err := os.ReadFile(p)
			if err != nil {
				return &ApplyError{Op: "read", Path: j.path, Err: err}
			}
			details[j.slot] = ChangeDetail{Kind: DetailContents, Data: data}

		case DetailDiff:
			f, err := os.Open(p)
			if err != nil {
				return &ApplyError{Op: "diff", Path: j.path, Err: err}
			}
			delta, err := Compare(j.sig, f)
			f.Close()
			if err != nil {
				return &ApplyError{Op: "diff", Path: j.path, Err: err}
			}
			details[j.slot] = ChangeDetail{Kind: DetailDiff, Delta: delta}
		}
		return nil
	})
	for _, j := range jobs {
		pool.Submit(j)
	}
	pool.Close()
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

// deferredDirOp is the Pass 2 work item stashed while Pass 1 walks
// forward: a directory-shaped Local/ResolvedLocal action that must be
// finished only after every descendant has been dealt with.
type deferredDirOp struct {
	path   string
	change Change
	detail *ChangeDetail // set iff the new side is a regular file needing content
}

// applier carries the mutable state threaded through both passes.
type applier struct {
	base    string
	details []ChangeDetail
	detIdx  int
}

func (ap *applier) nextDetail(need bool) (*ChangeDetail, error) {
	if !need {
		return nil, nil
	}
	if ap.detIdx >= len(ap.details) {
		return nil, fmt.Errorf("apply: ran out of change details")
	}
	d := &ap.details[ap.detIdx]
	ap.detIdx++
	return d, nil
}

// ApplyDetailedChanges executes actions against base, consuming details
// positionally, and returns the post-apply sorted Entry list that
// becomes the next snapshot.
func ApplyDetailedChanges(base string, actions []Action, details []ChangeDetail, allOld []Entry) ([]Entry, error) {
	SortActions(actions)

	ap := &applier{base: base, details: details}

	var newEntries []Entry
	var deferred []deferredDirOp
	oldIdx := 0

	copyOldBefore := func(path string) {
		for oldIdx < len(allOld) && allOld[oldIdx].Path < path {
			newEntries = append(newEntries, allOld[oldIdx])
			oldIdx++
		}
	}

	takeOld := func(path string) *Entry {
		if oldIdx < len(allOld) && allOld[oldIdx].Path == path {
			e := allOld[oldIdx]
			oldIdx++
			return &e
		}
		return nil
	}

	for _, a := range actions {
		path := a.Path()
		copyOldBefore(path)
		old := takeOld(path)

		switch a.Kind {
		case ActionConflict:
			if old != nil {
				newEntries = append(newEntries, *old)
			}

		case ActionRemote, ActionIdentical:
			c := a.C
			if c.Kind != Removed {
				newEntries = append(newEntries, c.New)
			}

		case ActionResolvedRemote:
			c := a.Effective
			if c.Kind != Removed {
				newEntries = append(newEntries, c.New)
			}

		case ActionLocal, ActionResolvedLocal:
			c, _ := effectiveChange(a)
			entry, defer_, err := ap.execPass1(path, c)
			if err != nil {
				return nil, err
			}
			if defer_ != nil {
				deferred = append(deferred, *defer_)
			} else if entry != nil {
				newEntries = append(newEntries, *entry)
			}
		}
	}
	for oldIdx < len(allOld) {
		newEntries = append(newEntries, allOld[oldIdx])
		oldIdx++
	}

	// Pass 2: reverse order over the deferred directory-shaped ops.
	for i := len(deferred) - 1; i >= 0; i-- {
		entry, err := ap.execPass2(deferred[i])
		if err != nil {
			return nil, err
		}
		if entry != nil {
			newEntries = append(newEntries, *entry)
		}
	}

	sort.Slice(newEntries, func(i, j int) bool { return newEntries[i].Path < newEntries[j].Path })
	return newEntries, nil
}

// execPass1 performs the immediate filesystem work for one
// Local/ResolvedLocal change and reports either a finished Entry to
// emit now, or a deferredDirOp for Pass 2.
func (ap *applier) execPass1(path string, c Change) (*Entry, *deferredDirOp, error) {
	full := filepath.Join(ap.base, path)

	switch c.Kind {
	case Removed:
		if c.Old.IsDir {
			return nil, &deferredDirOp{path: path, change: c}, nil
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return nil, nil, &ApplyError{Op: "remove", Path: path, Err: err}
		}
		return nil, nil, nil

	case Added:
		if c.New.IsDir {
			if err := os.Mkdir(full, 0o755); err != nil && !os.IsExist(err) {
				return nil, nil, &ApplyError{Op: "mkdir", Path: path, Err: err}
			}
			return nil, &deferredDirOp{path: path, change: c}, nil
		}

		det, err := ap.nextDetail(true)
		if err != nil {
			return nil, nil, &ApplyError{Op: "add", Path: path, Err: err}
		}
		entry, err := ap.createLeaf(full, path, c.New, det)
		if err != nil {
			return nil, nil, err
		}
		return entry, nil, nil

	case Modified:
		return ap.execModifiedPass1(full, path, c)
	}
	return nil, nil, nil
}

// execModifiedPass1 implements the Local(Modified(old, new)) branches:
// dir/file/symlink type changes each need different on-disk handling.
func (ap *applier) execModifiedPass1(full, path string, c Change) (*Entry, *deferredDirOp, error) {
	old, new_ := c.Old, c.New

	switch {
	case old.IsDir:
		// dir→file, dir→symlink, dir→dir: all deferred; stash the
		// detail now (positional order must be preserved) if one
		// was produced for this action.
		_, need := needsDetail(c)
		det, err := ap.nextDetail(need)
		if err != nil {
			return nil, nil, &ApplyError{Op: "modify", Path: path, Err: err}
		}
		return nil, &deferredDirOp{path: path, change: c, detail: det}, nil

	case old.IsRegular() && new_.IsRegular():
		det, err := ap.nextDetail(true)
		if err != nil {
			return nil, nil, &ApplyError{Op: "modify", Path: path, Err: err}
		}
		if det == nil || det.Kind != DetailDiff {
			return nil, nil, &ApplyError{Op: "modify", Path: path, Err: fmt.Errorf("expected diff detail")}
		}
		buf, err := restoreToBuffer(full, det.Delta)
		if err != nil {
			return nil, nil, &ApplyError{Op: "restore", Path: path, Err: err}
		}
		entry, err := ap.writeFile(full, path, new_, buf)
		if err != nil {
			return nil, nil, err
		}
		return entry, nil, nil

	case new_.IsDir:
		// file/symlink → dir: remove old, mkdir now, defer metadata+emit.
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return nil, nil, &ApplyError{Op: "remove", Path: path, Err: err}
		}
		if err := os.Mkdir(full, 0o755); err != nil && !os.IsExist(err) {
			return nil, nil, &ApplyError{Op: "mkdir", Path: path, Err: err}
		}
		return nil, &deferredDirOp{path: path, change: c}, nil

	default:
		// file/symlink → symlink/file, handled fully here.
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return nil, nil, &ApplyError{Op: "remove", Path: path, Err: err}
		}
		_, need := needsDetail(c)
		det, err := ap.nextDetail(need)
		if err != nil {
			return nil, nil, &ApplyError{Op: "modify", Path: path, Err: err}
		}
		entry, err := ap.createLeaf(full, path, new_, det)
		if err != nil {
			return nil, nil, err
		}
		return entry, nil, nil
	}
}

// createLeaf creates a fresh symlink or regular file at full (the
// directory case is handled by the caller) and finalizes its metadata.
func (ap *applier) createLeaf(full, path string, target Entry, det *ChangeDetail) (*Entry, error) {
	if target.IsSymlink() {
		if err := os.Symlink(target.Target, full); err != nil {
			return nil, &ApplyError{Op: "symlink", Path: path, Err: err}
		}
		return finalizeMeta(ap.base, path, target)
	}

	var data []byte
	if det != nil {
		if det.Kind != DetailContents {
			return nil, &ApplyError{Op: "add", Path: path, Err: fmt.Errorf("expected contents detail")}
		}
		data = det.Data
	}
	return ap.writeFile(full, path, target, data)
}

// writeFile atomically writes data to full and finalizes metadata.
func (ap *applier) writeFile(full, path string, target Entry, data []byte) (*Entry, error) {
	if err := WriteFileAtomic(full, data, targetPerm(target)); err != nil {
		return nil, &ApplyError{Op: "write", Path: path, Err: err}
	}
	return finalizeMeta(ap.base, path, target)
}

// execPass2 finishes a deferred directory-shaped change, run in reverse
// path order after every other change has landed.
func (ap *applier) execPass2(d deferredDirOp) (*Entry, error) {
	full := filepath.Join(ap.base, d.path)
	c := d.change

	switch c.Kind {
	case Removed:
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return nil, &ApplyError{Op: "rmdir", Path: d.path, Err: err}
		}
		return nil, nil

	case Added:
		return finalizeMeta(ap.base, d.path, c.New)

	case Modified:
		if c.Old.IsDir && !c.New.IsDir {
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return nil, &ApplyError{Op: "rmdir", Path: d.path, Err: err}
			}
			return ap.createLeaf(full, d.path, c.New, d.detail)
		}
		// dir→dir: metadata-only update.
		return finalizeMeta(ap.base, d.path, c.New)
	}
	return nil, nil
}

// restoreToBuffer runs RestoreSeek against the current file at full and
// returns the reconstructed bytes.
func restoreToBuffer(full string, delta *Delta) ([]byte, error) {
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf growBuffer
	if err := RestoreSeek(&buf, f, delta); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// growBuffer is a minimal io.Writer sink; avoids pulling in
// bytes.Buffer purely for its growth semantics.
type growBuffer struct{ b []byte }

func (g *growBuffer) Write(p []byte) (int, error) {
	g.b = append(g.b, p...)
	return len(p), nil
}

func targetPerm(e Entry) os.FileMode {
	if e.Mode == 0 {
		return 0o644
	}
	return e.Mode.Perm()
}

// finalizeMeta applies permissions (skipped for symlinks), sets mtime
// via a symlink-aware lutimes-equivalent call, and re-stats to capture
// the realized inode into the emitted Entry.
func finalizeMeta(base, path string, target Entry) (*Entry, error) {
	full := filepath.Join(base, path)

	if !target.IsSymlink() {
		if err := os.Chmod(full, targetPerm(target)); err != nil {
			return nil, &ApplyError{Op: "chmod", Path: path, Err: err}
		}
	}

	ts := unix.NsecToTimeval(target.Mtime * 1e9)
	if err := unix.Lutimes(full, []unix.Timeval{ts, ts}); err != nil {
		return nil, &ApplyError{Op: "utime", Path: path, Err: err}
	}

	return statEntry(base, path)
}

// statEntry lstats base/path and builds the realized Entry, the
// contract every branch above uses to report what actually landed on
// disk (inode, mode) rather than trusting the caller's intent.
func statEntry(base, path string) (*Entry, error) {
	full := filepath.Join(base, path)
	fi, err := os.Lstat(full)
	if err != nil {
		return nil, &ApplyError{Op: "stat", Path: path, Err: err}
	}

	e := &Entry{
		Path:  path,
		Mode:  fi.Mode() &^ fs.ModeType,
		IsDir: fi.IsDir(),
	}
	if st, ok := sysIno(fi); ok {
		e.Ino = st
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(full)
		if err != nil {
			return nil, &ApplyError{Op: "readlink", Path: path, Err: err}
		}
		e.Target = target
	} else {
		e.Size = fi.Size()
		e.Mtime = fi.ModTime().Unix()
	}
	return e, nil
}
