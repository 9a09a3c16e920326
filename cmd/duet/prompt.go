// prompt.go - interactive conflict resolution
//
// Grounded in TheEntropyCollective-noisefs/pkg/util/password.go's
// term.IsTerminal guard, extended to single-keypress raw mode (rather
// than ReadPassword's whole-line read) to answer each conflict prompt
// with a single key: "[l]ocal / [r]emote / [s]kip / [a]bort".
package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/opencoff/duet"
)

func promptTerminal(a duet.Action) (duet.ResolveChoice, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return 0, fmt.Errorf("conflict at %s requires an interactive terminal", a.Path())
	}

	fmt.Fprintf(os.Stderr, "conflict: %s\n  local:  %s\n  remote: %s\n[l]ocal/[r]emote/[s]kip/[a]bort? ",
		a.Path(), a.L, a.R)

	old, err := term.MakeRaw(fd)
	if err != nil {
		return 0, fmt.Errorf("prompt: %w", err)
	}
	defer term.Restore(fd, old)

	var buf [1]byte
	if _, err := os.Stdin.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("prompt: %w", err)
	}
	fmt.Fprintln(os.Stderr)

	switch buf[0] {
	case 'l', 'L':
		return duet.ChooseLocal, nil
	case 'r', 'R':
		return duet.ChooseRemote, nil
	case 's', 'S':
		return duet.ChooseSkip, nil
	case 'a', 'A', 3: // 3 == Ctrl-C under raw mode
		return duet.ChooseAbort, nil
	default:
		return duet.ChooseSkip, nil
	}
}
