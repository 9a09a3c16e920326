// safefile.go - safe file creation and unwinding on error
//
// (c) 2021 Sudhi Herle <sudhi@herle.net>
// Portions (c) 2026 the duet authors
//
// Licensing Terms: GPLv2
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim is made to its
// suitability for any purpose.
//
// Adapted from go-fio's safefile.go. Duet never clones an existing file
// in place (every SafeFile write starts from a freshly materialized
// buffer: full contents received over the wire, or a delta restored
// against the current local file into memory first) so the copy-on-write
// open mode and its go-mmap/CopyFd dependency are dropped.
package duet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"sync/atomic"
)

// SafeFile is an io.WriteCloser which uses a temporary file that
// will be atomically renamed when there are no errors and
// caller invokes Close(). The recommended usage is:
//
//	sf, err := NewSafeFile(...)
//	... error handling
//
//	defer sf.Abort()
//
//	... write to sf ..
//	sf.Close()
//
// It is safe to call Abort on a closed SafeFile; the first call
// to Close() or Abort() seals the outcome. Similarly, it is safe
// to call Close() after Abort() - the first call to either
// takes precedence.
type SafeFile struct {
	*os.File

	err  error
	name string

	// < 0 => aborted; > 0 => closed; = 0 => open and active
	closed atomic.Int64
}

var _ io.WriteCloser = &SafeFile{}

const (
	OPT_OVERWRITE uint32 = 1 << iota
)

// NewSafeFile creates a new temporary file that will either be aborted
// or safely renamed to nm. If OPT_OVERWRITE is not set, it refuses to
// proceed when nm already exists.
func NewSafeFile(nm string, opts uint32, flag int, perm os.FileMode) (*SafeFile, error) {
	if st, err := os.Lstat(nm); err == nil {
		if (opts & OPT_OVERWRITE) == 0 {
			return nil, fmt.Errorf("safefile: won't overwrite existing %s", nm)
		}
		if !st.Mode().IsRegular() {
			return nil, fmt.Errorf("safefile: %s is not a regular file", nm)
		}
	}

	flag |= os.O_CREATE | os.O_TRUNC
	if (flag & os.O_RDONLY) != 0 {
		return nil, fmt.Errorf("safefile: %s conflicting open mode (O_RDONLY)", nm)
	}
	if (flag & (os.O_RDWR | os.O_WRONLY)) == 0 {
		flag |= os.O_RDWR
	}

	// keep the old file around - we don't want to destroy it if we Abort() this operation.
	tmp := fmt.Sprintf("%s.tmp.%d.%x", nm, os.Getpid(), randU32())
	fd, err := os.OpenFile(tmp, flag, perm)
	if err != nil {
		return nil, err
	}

	return &SafeFile{File: fd, name: nm}, nil
}

func (sf *SafeFile) isOpen() bool {
	return sf.closed.Load() == 0
}

// Write attempts to write everything in b; it refuses after a previous
// error or after the file was closed/aborted.
func (sf *SafeFile) Write(b []byte) (int, error) {
	if sf.err != nil {
		return 0, sf.err
	}
	if !sf.isOpen() {
		return 0, fmt.Errorf("safefile: %s is not open", sf.Name())
	}

	var z int
	if z, sf.err = fullWrite(sf.File, b); sf.err != nil {
		return z, sf.err
	}
	return z, nil
}

// WriteAt writes b at absolute offset off.
func (sf *SafeFile) WriteAt(b []byte, off int64) (int, error) {
	if sf.err != nil {
		return 0, sf.err
	}
	if !sf.isOpen() {
		return 0, fmt.Errorf("safefile: %s is not open", sf.Name())
	}
	n, err := sf.File.WriteAt(b, off)
	if err != nil {
		sf.err = err
	}
	return n, err
}

// Abort discards the write and removes the temporary file. The first
// call to Abort() or Close() wins; later calls are no-ops.
func (sf *SafeFile) Abort() {
	n := sf.closed.Load()
	if n < 0 || n > 0 {
		return
	}
	sf.File.Close()
	os.Remove(sf.Name())
	sf.closed.Store(-1)
}

// Close flushes data & metadata to disk, closes the file and atomically
// renames the temp file to the final name - only if there were no
// intervening write errors.
func (sf *SafeFile) Close() error {
	if sf.err != nil {
		sf.Abort()
		return sf.err
	}

	n := sf.closed.Load()
	if n < 0 {
		return errAborted
	}
	if n > 0 {
		return sf.err
	}

	if sf.err = sf.Sync(); sf.err != nil {
		return sf.err
	}
	if sf.err = sf.File.Close(); sf.err != nil {
		return sf.err
	}
	if sf.err = os.Rename(sf.Name(), sf.name); sf.err != nil {
		return sf.err
	}

	sf.closed.Store(1)
	return nil
}

func fullWrite(d *os.File, b []byte) (int, error) {
	var z int
	n := len(b)
	for n > 0 {
		m, err := d.Write(b)
		if err != nil {
			return z, fmt.Errorf("safefile: %w", err)
		}
		n -= m
		b = b[m:]
		z += m
	}
	return z, nil
}

func randU32() uint32 {
	var b [4]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		panic(fmt.Sprintf("can't read 4 rand bytes: %s", err))
	}
	return binary.LittleEndian.Uint32(b[:])
}

var errAborted = errors.New("safefile: aborted; file not committed")

// WriteFileAtomic writes b to nm via a SafeFile, creating or overwriting
// nm with the given permissions.
func WriteFileAtomic(nm string, b []byte, perm os.FileMode) error {
	sf, err := NewSafeFile(nm, OPT_OVERWRITE, os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer sf.Abort()

	if _, err := sf.Write(b); err != nil {
		return err
	}
	return sf.Close()
}
