package duet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanRespectsLocations(t *testing.T) {
	base := t.TempDir()
	mustMkdir(t, filepath.Join(base, "src"))
	mustMkdir(t, filepath.Join(base, "src", "vendor"))
	mustMkdir(t, filepath.Join(base, "other"))
	mustWrite(t, filepath.Join(base, "src", "main.go"), "package main")
	mustWrite(t, filepath.Join(base, "src", "vendor", "lib.go"), "package vendor")
	mustWrite(t, filepath.Join(base, "other", "skip.txt"), "skip")

	locs := NewLocations([]Location{
		{Path: "src", Include: true},
		{Path: "src/vendor", Include: false},
	})

	entries, err := Scan(base, ".", locs, ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %s", err)
	}

	found := map[string]bool{}
	for _, e := range entries {
		found[e.Path] = true
	}
	if !found["src/main.go"] {
		t.Error("expected src/main.go to be scanned")
	}
	if found["src/vendor/lib.go"] {
		t.Error("src/vendor/lib.go should have been excluded")
	}
	if found["other/skip.txt"] {
		t.Error("other/skip.txt should have been excluded by the implicit root exclude")
	}
}

func TestScanIgnorePatterns(t *testing.T) {
	base := t.TempDir()
	mustWrite(t, filepath.Join(base, "keep.go"), "package main")
	mustWrite(t, filepath.Join(base, "build.o"), "junk")

	locs := NewLocations([]Location{{Path: ".", Include: true}})
	entries, err := Scan(base, ".", locs, ScanOptions{Ignore: Ignore{"*.o"}})
	if err != nil {
		t.Fatalf("Scan: %s", err)
	}

	found := map[string]bool{}
	for _, e := range entries {
		found[e.Path] = true
	}
	if !found["keep.go"] {
		t.Error("keep.go should have been scanned")
	}
	if found["build.o"] {
		t.Error("build.o should have been ignored")
	}
}

func TestScanSortedByPath(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"z.txt", "a.txt", "m.txt"} {
		mustWrite(t, filepath.Join(base, name), "x")
	}

	locs := NewLocations([]Location{{Path: ".", Include: true}})
	entries, err := Scan(base, ".", locs, ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %s", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Path >= entries[i].Path {
			t.Fatalf("entries not sorted: %s >= %s", entries[i-1].Path, entries[i].Path)
		}
	}
}

func TestChecksumFile(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "f.txt")
	mustWrite(t, path, "hello world")

	sum, err := ChecksumFile(path)
	if err != nil {
		t.Fatalf("ChecksumFile: %s", err)
	}
	if sum == 0 {
		t.Fatal("expected a nonzero checksum")
	}

	sum2, err := ChecksumFile(path)
	if err != nil {
		t.Fatalf("ChecksumFile (second call): %s", err)
	}
	if sum != sum2 {
		t.Fatalf("checksum not stable across calls: %d vs %d", sum, sum2)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %s", path, err)
	}
}

func mustWrite(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %s", path, err)
	}
}
