// errors.go - typed errors for duet's exit-code mapping
//
// (c) 2024 Sudhi Herle <sudhi@herle.net>
// Portions (c) 2026 the duet authors
//
// Licensing Terms: GPLv2
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim is made to its
// suitability for any purpose.
//
// Adapted from go-fio's errors.go (CopyError's Op/operands/wrapped-Err
// shape), split into one type per failure domain. The CLI picks its exit
// code at each call site and does not inspect these types.
package duet

import (
	"errors"
	"fmt"
)

// errAny reports whether err matches any of errs via errors.Is.
func errAny(err error, errs ...error) bool {
	for _, e := range errs {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// ProfileError wraps failures parsing or resolving a profile file.
type ProfileError struct {
	Op   string
	Name string
	Err  error
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("profile: %s %q: %s", e.Op, e.Name, e.Err.Error())
}

func (e *ProfileError) Unwrap() error { return e.Err }

// RemoteError wraps failures establishing or running the remote peer
// process (spawn, ssh invocation, handshake).
type RemoteError struct {
	Op   string
	Spec string
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote: %s %q: %s", e.Op, e.Spec, e.Err.Error())
}

func (e *RemoteError) Unwrap() error { return e.Err }

// TransportError wraps failures in the length-prefixed RPC framing once
// a connection to the peer is established (short reads, bad method id,
// unexpected EOF).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Err.Error())
}

func (e *TransportError) Unwrap() error { return e.Err }

// ScanError wraps failures walking a filesystem tree.
type ScanError struct {
	Op   string
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan: %s %q: %s", e.Op, e.Path, e.Err.Error())
}

func (e *ScanError) Unwrap() error { return e.Err }

// ApplyError wraps failures mutating the local tree during apply.
type ApplyError struct {
	Op   string
	Path string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply: %s %q: %s", e.Op, e.Path, e.Err.Error())
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ConflictError reports an unresolved or aborted conflict. The CLI does
// not use it: it reports conflicts itself and exits with its user-abort
// status.
type ConflictError struct {
	Path string
	Err  error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("conflict: %q: %s", e.Path, e.Err.Error())
	}
	return fmt.Sprintf("conflict: %q unresolved", e.Path)
}

func (e *ConflictError) Unwrap() error { return e.Err }

var (
	_ error = &ProfileError{}
	_ error = &RemoteError{}
	_ error = &TransportError{}
	_ error = &ScanError{}
	_ error = &ApplyError{}
	_ error = &ConflictError{}
)
