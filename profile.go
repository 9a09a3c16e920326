// profile.go - parse and resolve a profile file
//
// Grounded in original_source/src/profile.rs's line-oriented parse: line
// 1 is the local root, line 2 the remote spec, subsequent lines before
// "[ignore]" are include/exclude rules, everything after is a glob
// pattern. The local root is expanded for "~" and environment variables
// by expandHome; the remote spec line is split with
// github.com/opencoff/shlex's field-splitter instead of the original's
// naive whitespace split, so a quoted remote command or a path
// containing spaces survives.
package duet

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencoff/shlex"
)

// Profile is the parsed contents of a "<name>.prf" file.
type Profile struct {
	Local     string
	RemoteRaw string
	Locations Locations
	Ignore    Ignore
}

// RemoteSpec is the parsed form of a profile's remote line: either a
// bare local path, a "<cmd> <path>" pipe spec, or "ssh <host> [<cmd>]
// <path>".
type RemoteSpec struct {
	SSH  bool
	Host string // set iff SSH
	Cmd  string // set iff non-empty in the remote line (defaults applied by the dialer)
	Path string
}

// ParseProfile reads and parses the profile file at path.
func ParseProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ProfileError{Op: "open", Name: path, Err: err}
	}
	defer f.Close()

	p := &Profile{}
	var rules []Location
	section := 0 // 0: local, 1: remote, 2: locations, 3: ignore

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch section {
		case 0:
			local, err := expandHome(line)
			if err != nil {
				return nil, &ProfileError{Op: "parse", Name: path, Err: fmt.Errorf("line %d: %w", lineNo, err)}
			}
			p.Local = local
			section = 1

		case 1:
			p.RemoteRaw = line
			section = 2

		case 2:
			trimmed := strings.TrimSpace(line)
			switch {
			case trimmed == "[ignore]":
				section = 3
			case strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "-"):
				loc, err := parseLocationLine(trimmed)
				if err != nil {
					return nil, &ProfileError{Op: "parse", Name: path, Err: fmt.Errorf("line %d: %w", lineNo, err)}
				}
				rules = append(rules, loc)
			default:
				return nil, &ProfileError{Op: "parse", Name: path, Err: fmt.Errorf("line %d: can't parse line: %q", lineNo, line)}
			}

		case 3:
			p.Ignore = append(p.Ignore, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &ProfileError{Op: "scan", Name: path, Err: err}
	}
	if section < 2 {
		return nil, &ProfileError{Op: "parse", Name: path, Err: fmt.Errorf("profile incomplete: missing local root or remote spec")}
	}

	p.Locations = NewLocations(rules)
	return p, nil
}

// expandHome expands a leading "~" or "~/" the way shellexpand's "full"
// does for the common case duet needs (the original also expands
// environment variables; os.ExpandEnv covers that half here).
func expandHome(s string) (string, error) {
	s = os.ExpandEnv(s)
	if s == "~" {
		home, err := os.UserHomeDir()
		return home, err
	}
	if strings.HasPrefix(s, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, s[2:]), nil
	}
	return s, nil
}

// ParseRemoteSpec tokenizes a profile's remote line into a RemoteSpec:
// "<path>", "<cmd> <path>", or "ssh <host> [<cmd>] <path>".
func ParseRemoteSpec(raw string) (*RemoteSpec, error) {
	fields, err := shlex.Split(raw)
	if err != nil {
		return nil, &ProfileError{Op: "parse-remote", Name: raw, Err: err}
	}
	if len(fields) == 0 {
		return nil, &ProfileError{Op: "parse-remote", Name: raw, Err: fmt.Errorf("empty remote spec")}
	}

	if fields[0] != "ssh" {
		switch len(fields) {
		case 1:
			return &RemoteSpec{Path: fields[0]}, nil
		case 2:
			return &RemoteSpec{Cmd: fields[0], Path: fields[1]}, nil
		default:
			return nil, &ProfileError{Op: "parse-remote", Name: raw, Err: fmt.Errorf("too many fields")}
		}
	}

	rest := fields[1:]
	if len(rest) < 2 {
		return nil, &ProfileError{Op: "parse-remote", Name: raw, Err: fmt.Errorf("ssh spec needs a host and a path")}
	}
	spec := &RemoteSpec{SSH: true, Host: rest[0], Path: rest[len(rest)-1]}
	if mid := rest[1 : len(rest)-1]; len(mid) > 0 {
		spec.Cmd = strings.Join(mid, " ")
	}
	return spec, nil
}

// profileDir returns the per-user config directory duet stores
// profiles, snapshots, and remote-state files under.
func profileDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "duet"), nil
}

// ProfilePath returns the ".prf" path for a profile name.
func ProfilePath(name string) (string, error) {
	dir, err := profileDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".prf"), nil
}

// SnapshotPath returns the local ".snp" snapshot path for a profile name.
func SnapshotPath(name string) (string, error) {
	dir, err := profileDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".snp"), nil
}

// RemoteStatePath returns the server-side snapshot path keyed by
// initiator id, under "remotes/<id>".
func RemoteStatePath(initiatorID string) (string, error) {
	dir, err := profileDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "remotes", initiatorID), nil
}
