// main.go - duet CLI entry point
//
// Flag parsing follows go-fio/testsuite/main.go's use of
// github.com/opencoff/pflag (a FlagSet with ExitOnError, long+short
// forms registered together); logging follows the same file's
// github.com/opencoff/go-logger setup. Everything past flag parsing
// and prompting is a thin shell around the duet package's exported
// engine functions — the sync driver, conflict prompting, and hidden
// subcommands all live here since they are this binary's one job.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"syscall"

	flag "github.com/opencoff/pflag"
	"github.com/opencoff/go-logger"

	"github.com/opencoff/duet"
)

const (
	exitOK           = 0
	exitUserAbort    = 1
	exitProfileError = 2
	exitRemoteError  = 3
	exitInterrupted  = 6
)

var z = path.Base(os.Args[0])

type options struct {
	interactive bool
	assumeYes   bool
	dryRun      bool
	batch       bool
	force       bool
	verbose     bool
	help        bool
	version     bool
	license     bool
	server      bool
}

func main() {
	var o options

	fs := flag.NewFlagSet(z, flag.ExitOnError)
	fs.BoolVarP(&o.interactive, "interactive", "i", false, "Resolve conflicts interactively [False]")
	fs.BoolVarP(&o.assumeYes, "yes", "y", false, "Assume yes to any confirmation prompt [False]")
	fs.BoolVarP(&o.dryRun, "dry-run", "n", false, "Show what would change without applying it [False]")
	fs.BoolVarP(&o.batch, "batch", "b", false, "Abort on any conflict [False]")
	fs.BoolVarP(&o.force, "force", "f", false, "Apply non-conflicting changes in batch mode [False]")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "Verbose logging [False]")
	fs.BoolVarP(&o.help, "help", "h", false, "Show help and exit [False]")
	fs.BoolVarP(&o.version, "version", "", false, "Show version and exit [False]")
	fs.BoolVarP(&o.license, "license", "", false, "Show license and exit [False]")
	fs.BoolVarP(&o.server, "server", "", false, "Run as the remote peer server (internal) [False]")
	fs.SetOutput(os.Stdout)

	if err := fs.Parse(os.Args[1:]); err != nil {
		die(exitProfileError, "%s", err)
	}

	if o.help {
		usage(fs)
		os.Exit(exitOK)
	}
	if o.version {
		fmt.Println(duetVersion)
		os.Exit(exitOK)
	}
	if o.license {
		fmt.Println(duetLicense)
		os.Exit(exitOK)
	}

	args := fs.Args()

	if o.server {
		runServer(&o, args)
		return
	}

	if len(args) > 0 {
		if fn, ok := hiddenSubcommands[args[0]]; ok {
			fn(args[1:])
			return
		}
	}

	runSync(&o, args)
}

func newLogger(verbose bool, name string) logger.Logger {
	lvl := logger.LOG_INFO
	if verbose {
		lvl = logger.LOG_DEBUG
	}
	log, err := logger.NewLogger("STDERR", lvl, name, logger.Ldate|logger.Ltime)
	if err != nil {
		die(exitProfileError, "logger: %s", err)
	}
	return log
}

// runServer implements the "--server <path>" internal invocation
// launched by Dial on the far end of an ssh/pipe transport: read
// framed requests from stdin, write framed responses to stdout.
func runServer(o *options, args []string) {
	if len(args) != 1 {
		die(exitRemoteError, "--server requires exactly one path argument")
	}

	log := newLogger(o.verbose, z+" [server]")
	defer log.Close()

	srv := duet.NewPeerServer(args[0], log)
	if err := srv.Serve(stdioConn{}); err != nil {
		die(exitRemoteError, "server: %s", err)
	}
}

// stdioConn adapts os.Stdin/os.Stdout into the io.ReadWriteCloser the
// server and client sides of the peer protocol both expect.
type stdioConn struct{}

func (stdioConn) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdioConn) Write(b []byte) (int, error) { return os.Stdout.Write(b) }
func (stdioConn) Close() error                { return os.Stdin.Close() }

var _ io.ReadWriteCloser = stdioConn{}

func runSync(o *options, args []string) {
	if len(args) < 1 {
		usage(nil)
		os.Exit(exitProfileError)
	}
	profileName := args[0]

	log := newLogger(o.verbose, z)
	defer log.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("interrupted")
		os.Exit(exitInterrupted)
	}()

	profilePath, err := duet.ProfilePath(profileName)
	if err != nil {
		die(exitProfileError, "%s", err)
	}
	profile, err := duet.ParseProfile(profilePath)
	if err != nil {
		die(exitProfileError, "%s", err)
	}

	localBase := profile.Local
	if len(args) > 1 {
		localBase = args[1]
	}

	remoteSpec, err := duet.ParseRemoteSpec(profile.RemoteRaw)
	if err != nil {
		die(exitProfileError, "%s", err)
	}

	conn, err := duet.Dial(remoteSpec)
	if err != nil {
		die(exitRemoteError, "%s", err)
	}
	peer := duet.NewPeerClient(conn)
	defer peer.Close()

	if err := peer.SetBase(remoteSpec.Path); err != nil {
		die(exitRemoteError, "%s", err)
	}

	snapPath, err := duet.SnapshotPath(profileName)
	if err != nil {
		die(exitProfileError, "%s", err)
	}
	oldLocal, err := duet.LoadSnapshot(snapPath)
	if err != nil {
		die(exitProfileError, "%s", err)
	}

	initiatorID := initiatorHash(profileName)

	type scanResult struct {
		entries []duet.Entry
		err     error
	}
	type remoteResult struct {
		changes []duet.Change
		err     error
	}
	scanCh := make(chan scanResult, 1)
	remoteCh := make(chan remoteResult, 1)

	go func() {
		entries, err := duet.Scan(localBase, ".", profile.Locations, duet.ScanOptions{Ignore: profile.Ignore})
		scanCh <- scanResult{entries, err}
	}()
	go func() {
		changes, err := peer.Changes(".", profile.Locations, profile.Ignore, initiatorID)
		remoteCh <- remoteResult{changes, err}
	}()

	sr := <-scanCh
	if sr.err != nil {
		log.Warn("scan: %s", sr.err)
	}
	rr := <-remoteCh
	if rr.err != nil {
		die(exitRemoteError, "%s", rr.err)
	}

	localChanges := duet.DiffEntries(oldLocal, sr.entries)
	actions := duet.DiffChanges(localChanges, rr.changes)

	if o.dryRun {
		for _, a := range actions {
			fmt.Println(a.String())
		}
		os.Exit(exitOK)
	}

	switch {
	case o.interactive && duet.HasConflicts(actions):
		resolved, aborted, err := duet.ResolveInteractive(actions, promptTerminal)
		if err != nil {
			die(exitProfileError, "%s", err)
		}
		if aborted {
			os.Exit(exitUserAbort)
		}
		actions = resolved

	case o.batch:
		if !duet.ResolveBatch(actions, o.force) {
			log.Error("unresolved conflicts in batch mode")
			os.Exit(exitUserAbort)
		}

	default:
		if duet.HasConflicts(actions) && !o.assumeYes {
			log.Error("unresolved conflicts; re-run with -i, -b -f, or -y")
			os.Exit(exitUserAbort)
		}
	}

	if err := peer.SetActions(duet.Reverse(actions)); err != nil {
		die(exitRemoteError, "%s", err)
	}

	localSigs, err := duet.GetSignatures(localBase, actions)
	if err != nil {
		die(exitRemoteError, "%s", err)
	}
	remoteSigs, err := peer.GetSignatures()
	if err != nil {
		die(exitRemoteError, "%s", err)
	}

	localDetails, err := duet.GetDetailedChanges(localBase, actions, remoteSigs, true)
	if err != nil {
		die(exitRemoteError, "%s", err)
	}
	remoteDetails, err := peer.GetDetailedChanges(localSigs)
	if err != nil {
		die(exitRemoteError, "%s", err)
	}

	newLocal, err := duet.ApplyDetailedChanges(localBase, actions, remoteDetails, oldLocal)
	if err != nil {
		die(exitRemoteError, "%s", err)
	}
	if err := peer.ApplyDetailedChanges(localDetails); err != nil {
		die(exitRemoteError, "%s", err)
	}

	if err := duet.SaveSnapshot(snapPath, newLocal); err != nil {
		die(exitProfileError, "%s", err)
	}
	if err := peer.SaveState(); err != nil {
		die(exitRemoteError, "%s", err)
	}

	log.Info("sync complete: %d actions", len(actions))
}

func initiatorHash(profileName string) string {
	host, _ := os.Hostname()
	sum := sha256.Sum256([]byte(host + "\x00" + profileName))
	return hex.EncodeToString(sum[:16])
}

func die(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", z, fmt.Sprintf(format, args...))
	os.Exit(code)
}

func usage(fs *flag.FlagSet) {
	fmt.Printf(usageStr, z, z)
	if fs != nil {
		fs.PrintDefaults()
	}
}

const duetVersion = "duet version 1.0.0"

const duetLicense = `duet is distributed under the terms the original project's authors chose.
See the project's LICENSE file for the full text.`

var usageStr = `%s - bi-directional file tree synchronizer.

Usage: %s [flags] <profile> [<path>]

Hidden subcommands: _snapshot, _inspect, _changes, _info, _walk

Flags:
`
