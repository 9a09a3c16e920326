// safefile_test.go -- tests for safefile impl

package duet

import (
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

func TestSafeFileSimple(t *testing.T) {
	tmpdir := t.TempDir()
	fn := filepath.Join(tmpdir, "file-1")

	if _, err := createFile(fn, 1024+mrand.IntN(65536)); err != nil {
		t.Fatalf("can't create tmpfile: %s", err)
	}

	if _, err := NewSafeFile(fn, 0, 0, 0600); err == nil {
		t.Fatalf("%s: bypassed overwrite protection", fn)
	}

	buf := make([]byte, 128+mrand.IntN(65536))
	randbuf(buf)

	sf, err := NewSafeFile(fn, OPT_OVERWRITE, 0, 0600)
	if err != nil {
		t.Fatalf("%s: can't create safefile: %s", fn, err)
	}

	n, err := sf.Write(buf)
	if err != nil {
		t.Fatalf("%s: write error: %s", sf.Name(), err)
	}
	if n != len(buf) {
		t.Fatalf("%s: partial write: exp %d, saw %d", sf.Name(), len(buf), n)
	}

	if err = sf.Close(); err != nil {
		t.Fatalf("%s: close: %s", sf.Name(), err)
	}

	ck2 := cksum(buf)
	ck3, err := fileCksum(fn)
	if err != nil {
		t.Fatalf("%s: cksum error: %s", fn, err)
	}
	if !byteEq(ck2, ck3) {
		t.Fatalf("cksum mismatch: %s\nexp %x\nsaw %x", fn, ck2, ck3)
	}
}

func TestSafeFileAbort(t *testing.T) {
	tmpdir := t.TempDir()
	fn := filepath.Join(tmpdir, "file-1")

	ck1, err := createFile(fn, 1024+mrand.IntN(65536))
	if err != nil {
		t.Fatalf("can't create tmpfile: %s", err)
	}

	buf := make([]byte, 128+mrand.IntN(65536))
	randbuf(buf)

	sf, err := NewSafeFile(fn, OPT_OVERWRITE, 0, 0600)
	if err != nil {
		t.Fatalf("%s: can't create safefile: %s", fn, err)
	}

	n, err := sf.Write(buf)
	if err != nil {
		t.Fatalf("%s: write error: %s", sf.Name(), err)
	}
	if n != len(buf) {
		t.Fatalf("%s: partial write: exp %d, saw %d", sf.Name(), len(buf), n)
	}

	sf.Abort()
	err = sf.Close()
	if !errors.Is(err, errAborted) {
		t.Fatalf("%s: abort+close: exp errAborted, saw %s", fn, err)
	}

	// File's original contents shouldn't have changed
	ck3, err := fileCksum(fn)
	if err != nil {
		t.Fatalf("%s: cksum error: %s", fn, err)
	}
	if !byteEq(ck1, ck3) {
		t.Fatalf("cksum mismatch: %s", fn)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	tmpdir := t.TempDir()
	fn := filepath.Join(tmpdir, "atomic")

	buf := make([]byte, 4096)
	randbuf(buf)

	if err := WriteFileAtomic(fn, buf, 0600); err != nil {
		t.Fatalf("write: %s", err)
	}

	got, err := os.ReadFile(fn)
	if err != nil {
		t.Fatalf("read back: %s", err)
	}
	if !byteEq(buf, got) {
		t.Fatalf("content mismatch after atomic write")
	}
}

func byteEq(a, b []byte) bool {
	return len(a) == len(b) && 1 == subtle.ConstantTimeCompare(a, b)
}

func cksum(b []byte) []byte {
	h := sha256.New()
	h.Write(b)
	return h.Sum(nil)
}

func fileCksum(nm string) ([]byte, error) {
	b, err := os.ReadFile(nm)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(b)
	return h.Sum(nil), nil
}

// create a file and return its cryptographic checksum
func createFile(nm string, sz int) ([]byte, error) {
	fd, err := os.OpenFile(nm, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if sz <= 0 {
		sz = 1024 + mrand.IntN(65536)
	}

	buf := make([]byte, 4096)
	h := sha256.New()

	for sz > 0 {
		n := min(len(buf), sz)
		b := buf[:n]
		randbuf(b)
		h.Write(b)
		n, err := fd.Write(b)
		if err != nil {
			return nil, err
		}
		if n != len(b) {
			return nil, fmt.Errorf("%s: partial write (exp %d, saw %d)", nm, len(b), n)
		}
		sz -= n
	}

	if err = fd.Sync(); err != nil {
		return nil, err
	}
	return h.Sum(nil), fd.Close()
}

func randbuf(b []byte) []byte {
	n, err := crand.Read(b)
	if err != nil || n != len(b) {
		panic(fmt.Sprintf("can't read %d bytes of crypto/rand: %s", len(b), err))
	}
	return b
}
