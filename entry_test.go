package duet

import "testing"

func TestEntryMarshalRoundTrip(t *testing.T) {
	e := Entry{Path: "a/b/c.txt", Size: 123, Mtime: 456, Ino: 789, Mode: 0644, Checksum: 0xdeadbeef}

	buf := make([]byte, e.MarshalSize())
	n, err := e.MarshalTo(buf)
	if err != nil {
		t.Fatalf("MarshalTo: %s", err)
	}
	if n != len(buf) {
		t.Fatalf("MarshalTo consumed %d, want %d", n, len(buf))
	}

	var got Entry
	n2, err := got.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %s", err)
	}
	if n2 != n {
		t.Fatalf("Unmarshal consumed %d, want %d", n2, n)
	}
	if got != e {
		t.Fatalf("got %+v, want %+v", got, e)
	}
}

func TestEntryUnmarshalTooSmall(t *testing.T) {
	var e Entry
	if _, err := e.Unmarshal([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error unmarshaling a truncated buffer")
	}
}

func TestEntryIsSymlinkAndRegular(t *testing.T) {
	sym := Entry{Path: "l", Target: "x"}
	if !sym.IsSymlink() || sym.IsRegular() {
		t.Errorf("symlink entry: IsSymlink=%v IsRegular=%v", sym.IsSymlink(), sym.IsRegular())
	}

	dir := Entry{Path: "d", IsDir: true}
	if dir.IsSymlink() || dir.IsRegular() {
		t.Errorf("dir entry: IsSymlink=%v IsRegular=%v", dir.IsSymlink(), dir.IsRegular())
	}

	reg := Entry{Path: "f"}
	if reg.IsSymlink() || !reg.IsRegular() {
		t.Errorf("regular entry: IsSymlink=%v IsRegular=%v", reg.IsSymlink(), reg.IsRegular())
	}
}

func TestEntryEquivalentUsesChecksumWhenPresent(t *testing.T) {
	a := Entry{Path: "f", Size: 10, Mtime: 1, Ino: 1, Checksum: 42}
	b := Entry{Path: "f", Size: 999, Mtime: 999, Ino: 999, Checksum: 42}
	if !a.equivalent(&b) {
		t.Error("entries with matching nonzero checksums should be equivalent despite other differences")
	}

	c := Entry{Path: "f", Size: 10, Mtime: 1, Ino: 1, Checksum: 43}
	if a.equivalent(&c) {
		t.Error("entries with differing nonzero checksums should not be equivalent")
	}
}

func TestEntryEquivalentFallsBackToStat(t *testing.T) {
	a := Entry{Path: "f", Size: 10, Mtime: 1, Ino: 1}
	b := Entry{Path: "f", Size: 10, Mtime: 1, Ino: 1}
	if !a.equivalent(&b) {
		t.Error("entries with matching size/mtime/ino and no checksum should be equivalent")
	}

	c := Entry{Path: "f", Size: 11, Mtime: 1, Ino: 1}
	if a.equivalent(&c) {
		t.Error("entries with differing size should not be equivalent")
	}
}

func TestSortEntries(t *testing.T) {
	es := []Entry{{Path: "z"}, {Path: "a"}, {Path: "m"}}
	SortEntries(es)
	if es[0].Path != "a" || es[1].Path != "m" || es[2].Path != "z" {
		t.Fatalf("not sorted: %+v", es)
	}
}
