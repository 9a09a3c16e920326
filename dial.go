// dial.go - thin session-setup contract for the peer transport
//
// Establishing the connection (spawn a sibling process, or exec ssh)
// is glue; only the framed protocol that runs once connected is core.
// Grounded in go-fio's preference for os/exec over any custom
// process-management layer — the pack carries no SSH library, so duet
// shells out to the system ssh binary exactly as a profile's "ssh
// <host> [<cmd>] <path>" line describes.
package duet

import (
	"io"
	"os/exec"
)

// pipeConn adapts a running *exec.Cmd's stdin/stdout pipes into a
// single io.ReadWriteCloser, closing both pipes and waiting on the
// child when the caller is done.
type pipeConn struct {
	io.Reader
	io.WriteCloser
	cmd *exec.Cmd
}

func (p *pipeConn) Read(b []byte) (int, error) { return p.Reader.Read(b) }

func (p *pipeConn) Close() error {
	werr := p.WriteCloser.Close()
	err := p.cmd.Wait()
	if werr != nil {
		return werr
	}
	return err
}

// Dial starts the remote peer process described by spec and returns a
// connected transport. A non-SSH spec with a Cmd set runs that command
// directly with "--server" and Path as its arguments (the local,
// same-host "pipe to a sibling process" case); a bare-path spec runs
// "duet" the same way; an SSH spec execs the system ssh binary with the
// remote command (default "duet"), "--server" and Path forwarded.
func Dial(spec *RemoteSpec) (io.ReadWriteCloser, error) {
	var cmd *exec.Cmd

	switch {
	case spec.SSH:
		remoteCmd := spec.Cmd
		if remoteCmd == "" {
			remoteCmd = "duet"
		}
		cmd = exec.Command("ssh", spec.Host, "--", remoteCmd, "--server", spec.Path)

	case spec.Cmd != "":
		cmd = exec.Command(spec.Cmd, "--server", spec.Path)

	default:
		cmd = exec.Command("duet", "--server", spec.Path)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &RemoteError{Op: "dial", Spec: spec.Path, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &RemoteError{Op: "dial", Spec: spec.Path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &RemoteError{Op: "dial", Spec: spec.Path, Err: err}
	}

	return &pipeConn{Reader: stdout, WriteCloser: stdin, cmd: cmd}, nil
}
