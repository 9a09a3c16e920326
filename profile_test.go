package duet

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.prf")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write profile: %s", err)
	}
	return path
}

func TestParseProfileBasic(t *testing.T) {
	path := writeProfile(t, "/home/alice/proj\n"+
		"ssh build-box /opt/bin/duet /srv/proj\n"+
		"+src\n"+
		"-src/vendor\n"+
		"[ignore]\n"+
		"*.o\n"+
		"*.tmp\n")

	p, err := ParseProfile(path)
	if err != nil {
		t.Fatalf("ParseProfile: %s", err)
	}
	if p.Local != "/home/alice/proj" {
		t.Errorf("Local = %q", p.Local)
	}
	if p.RemoteRaw != "ssh build-box /opt/bin/duet /srv/proj" {
		t.Errorf("RemoteRaw = %q", p.RemoteRaw)
	}
	if len(p.Ignore) != 2 || p.Ignore[0] != "*.o" || p.Ignore[1] != "*.tmp" {
		t.Errorf("Ignore = %+v", p.Ignore)
	}

	foundSrc, foundVendor := false, false
	for _, l := range p.Locations {
		switch l.Path {
		case "src":
			foundSrc = l.Include
		case "src/vendor":
			foundVendor = l.Include
		}
	}
	if !foundSrc {
		t.Error("expected src to be included")
	}
	if foundVendor {
		t.Error("expected src/vendor to be excluded")
	}
}

func TestParseProfileIncomplete(t *testing.T) {
	path := writeProfile(t, "/home/alice/proj\n")
	if _, err := ParseProfile(path); err == nil {
		t.Fatal("expected error for a profile missing the remote line")
	}
}

func TestParseProfileBadLocationLine(t *testing.T) {
	path := writeProfile(t, "/home/alice/proj\ncmd /srv/proj\n?bad\n")
	if _, err := ParseProfile(path); err == nil {
		t.Fatal("expected error for a malformed location line")
	}
}

func TestParseRemoteSpecForms(t *testing.T) {
	cases := []struct {
		raw  string
		want RemoteSpec
	}{
		{"/srv/proj", RemoteSpec{Path: "/srv/proj"}},
		{"mycmd /srv/proj", RemoteSpec{Cmd: "mycmd", Path: "/srv/proj"}},
		{"ssh host /srv/proj", RemoteSpec{SSH: true, Host: "host", Path: "/srv/proj"}},
		{"ssh host /opt/bin/duet /srv/proj", RemoteSpec{SSH: true, Host: "host", Cmd: "/opt/bin/duet", Path: "/srv/proj"}},
		{`ssh host "run me" /srv/proj`, RemoteSpec{SSH: true, Host: "host", Cmd: "run me", Path: "/srv/proj"}},
	}
	for _, c := range cases {
		got, err := ParseRemoteSpec(c.raw)
		if err != nil {
			t.Errorf("ParseRemoteSpec(%q): %s", c.raw, err)
			continue
		}
		if *got != c.want {
			t.Errorf("ParseRemoteSpec(%q) = %+v, want %+v", c.raw, *got, c.want)
		}
	}
}

func TestParseRemoteSpecErrors(t *testing.T) {
	for _, raw := range []string{"", "ssh host", "a b c d"} {
		if _, err := ParseRemoteSpec(raw); err == nil {
			t.Errorf("ParseRemoteSpec(%q): expected error", raw)
		}
	}
}

func TestProfilePathsShareDir(t *testing.T) {
	pp, err := ProfilePath("work")
	if err != nil {
		t.Fatalf("ProfilePath: %s", err)
	}
	sp, err := SnapshotPath("work")
	if err != nil {
		t.Fatalf("SnapshotPath: %s", err)
	}
	if filepath.Dir(pp) != filepath.Dir(sp) {
		t.Errorf("profile and snapshot paths not siblings: %s vs %s", pp, sp)
	}
	if filepath.Base(pp) != "work.prf" || filepath.Base(sp) != "work.snp" {
		t.Errorf("unexpected basenames: %s, %s", pp, sp)
	}
}
