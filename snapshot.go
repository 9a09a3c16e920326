// snapshot.go - load/save the persisted Entry list for one side
//
// Snapshots are the only durable synchronization state duet keeps
// between runs, written by temp-file-then-rename so a crash mid-write
// never corrupts the previous snapshot. Grounded in go-fio's
// safefile.go for the atomic-write mechanics; the on-disk encoding
// reuses Entry.MarshalTo/Unmarshal from entry.go (length-prefixed
// records, the same shape go-fio's own marshal helpers produce for
// Info).
package duet

import (
	"fmt"
	"os"
	"path/filepath"
)

const snapshotMagic = "duet-snp1"

// SaveSnapshot writes entries to path atomically: magic header, then
// one length-prefixed Entry record per entry.
func SaveSnapshot(path string, entries []Entry) error {
	size := len(snapshotMagic) + 4
	for i := range entries {
		size += 4 + entries[i].MarshalSize()
	}

	buf := make([]byte, size)
	b := buf
	copy(b, snapshotMagic)
	b = b[len(snapshotMagic):]
	b = enc32(b, len(entries))

	for i := range entries {
		n := entries[i].MarshalSize()
		b = enc32(b, n)
		if _, err := entries[i].MarshalTo(b[:n]); err != nil {
			return fmt.Errorf("snapshot: marshal %q: %w", entries[i].Path, err)
		}
		b = b[n:]
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("snapshot: mkdir: %w", err)
	}
	if err := WriteFileAtomic(path, buf, 0o600); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot reads a snapshot previously written by SaveSnapshot. A
// missing file is not an error: it returns an empty entry list, the
// starting state for a side that has never synced before.
func LoadSnapshot(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}

	b := raw
	if len(b) < len(snapshotMagic)+4 || string(b[:len(snapshotMagic)]) != snapshotMagic {
		return nil, fmt.Errorf("snapshot: %s: bad header", path)
	}
	b = b[len(snapshotMagic):]

	var count int
	b, count = dec32[int](b)

	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("snapshot: %s: truncated record %d: %w", path, i, ErrTooSmall)
		}
		var n int
		b, n = dec32[int](b)
		if len(b) < n {
			return nil, fmt.Errorf("snapshot: %s: truncated record %d: %w", path, i, ErrTooSmall)
		}
		if _, err := entries[i].Unmarshal(b[:n]); err != nil {
			return nil, fmt.Errorf("snapshot: %s: record %d: %w", path, i, err)
		}
		b = b[n:]
	}

	SortEntries(entries)
	return entries, nil
}
