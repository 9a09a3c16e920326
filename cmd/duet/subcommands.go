// subcommands.go - hidden debugging subcommands
//
// Each one is a thin print-the-result wrapper around a duet package
// function, in the spirit of go-fio/cmp/testsuite's cmd_*.go files:
// one small command per file's worth of behavior, dispatched by name
// rather than through pflag's subcommand support (the hidden commands
// intentionally have no flags of their own).
package main

import (
	"fmt"
	"os"

	"github.com/opencoff/duet"
)

// includeAll is the location rule set the hidden subcommands use when
// run without a profile: include everything under base, mirroring
// what a profile with a single top-level "+." rule would produce.
var includeAll = duet.Locations{{Path: ".", Include: true}}

var hiddenSubcommands = map[string]func([]string){
	"_walk":     cmdWalk,
	"_info":     cmdInfo,
	"_changes":  cmdChanges,
	"_inspect":  cmdInspect,
	"_snapshot": cmdSnapshot,
}

// _walk <base> [restrict] - scan and print every entry found.
func cmdWalk(args []string) {
	if len(args) < 1 {
		die(exitProfileError, "_walk: usage: _walk <base> [restrict]")
	}
	restrict := "."
	if len(args) > 1 {
		restrict = args[1]
	}
	entries, err := duet.Scan(args[0], restrict, includeAll, duet.ScanOptions{})
	if err != nil {
		die(exitProfileError, "_walk: %s", err)
	}
	for _, e := range entries {
		fmt.Println(e.String())
	}
}

// _info <base> <path> - print the Entry for one path, as scanned now.
func cmdInfo(args []string) {
	if len(args) != 2 {
		die(exitProfileError, "_info: usage: _info <base> <path>")
	}
	entries, err := duet.Scan(args[0], args[1], includeAll, duet.ScanOptions{})
	if err != nil {
		die(exitProfileError, "_info: %s", err)
	}
	for _, e := range entries {
		if e.Path == args[1] {
			fmt.Println(e.String())
			return
		}
	}
	die(exitProfileError, "_info: %s: not found", args[1])
}

// _changes <base> <snapshot> - diff a fresh scan against a saved snapshot.
func cmdChanges(args []string) {
	if len(args) != 2 {
		die(exitProfileError, "_changes: usage: _changes <base> <snapshot>")
	}
	old, err := duet.LoadSnapshot(args[1])
	if err != nil {
		die(exitProfileError, "_changes: %s", err)
	}
	entries, err := duet.Scan(args[0], ".", includeAll, duet.ScanOptions{})
	if err != nil {
		die(exitProfileError, "_changes: %s", err)
	}
	for _, c := range duet.DiffEntries(old, entries) {
		fmt.Println(c.String())
	}
}

// _inspect <snapshot> - print every entry in a saved snapshot.
func cmdInspect(args []string) {
	if len(args) != 1 {
		die(exitProfileError, "_inspect: usage: _inspect <snapshot>")
	}
	entries, err := duet.LoadSnapshot(args[0])
	if err != nil {
		die(exitProfileError, "_inspect: %s", err)
	}
	for _, e := range entries {
		fmt.Println(e.String())
	}
}

// _snapshot <base> <out> - scan base and write a fresh snapshot to out.
func cmdSnapshot(args []string) {
	if len(args) != 2 {
		die(exitProfileError, "_snapshot: usage: _snapshot <base> <out>")
	}
	entries, err := duet.Scan(args[0], ".", includeAll, duet.ScanOptions{})
	if err != nil {
		die(exitProfileError, "_snapshot: %s", err)
	}
	if err := duet.SaveSnapshot(args[1], entries); err != nil {
		die(exitProfileError, "_snapshot: %s", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %d entries to %s\n", len(entries), args[1])
}
