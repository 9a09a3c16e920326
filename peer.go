// peer.go - length-framed RPC session between the initiator and the
// remote peer process
//
// Grounded in go-fio/workpool.go's instance-not-global state discipline
// (the peer's mutable session state is an instance owned by the
// dispatch loop, not a package global) and go-fio/encdec.go's
// big-endian fixed-width framing idiom, extended
// here to a request/response length-prefixed frame: a 4-byte big-endian
// length, one method/status tag byte, then a payload marshaled by
// peerwire.go. Session setup (process spawn or "ssh host cmd path") is
// deliberately left as a thin Dial contract; everything after a
// connection exists is implemented in full.
package duet

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/opencoff/go-logger"
)

type peerMethod byte

const (
	methodSetBase peerMethod = 1 + iota
	methodChanges
	methodSetActions
	methodGetSignatures
	methodGetDetailedChanges
	methodApplyDetailedChanges
	methodSaveState
)

const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxFrame bounds a single RPC payload, guarding against a corrupted or
// hostile peer claiming an absurd length prefix.
const maxFrame = 1 << 30

// RPCError is the tagged error the peer protocol carries across the
// wire: a {kind, message} pair instead of an opaque string.
type RPCError struct {
	Kind    string
	Message string
}

func (e *RPCError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func classifyErr(err error) string {
	switch {
	case err == nil:
		return ""
	case errAny(err, io.EOF):
		return "eof"
	default:
		switch err.(type) {
		case *ScanError:
			return "scan"
		case *ApplyError:
			return "apply"
		case *ProfileError:
			return "profile"
		default:
			return "internal"
		}
	}
}

// writeFrame sends one [len:4][tag:1][payload] frame.
func writeFrame(w io.Writer, tag byte, payload []byte) error {
	hdr := make([]byte, 5)
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(payload)+1))
	hdr[4] = tag
	if _, err := w.Write(hdr); err != nil {
		return &TransportError{Op: "write-header", Err: err}
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return &TransportError{Op: "write-payload", Err: err}
		}
	}
	return nil
}

// readFrame receives one frame, returning the tag byte and payload. A
// clean EOF exactly at a frame boundary is reported as io.EOF: a clean
// half-close on the server's stdin is the protocol's termination
// signal, not an error.
func readFrame(r io.Reader) (byte, []byte, error) {
	var lb [4]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, &TransportError{Op: "read-header", Err: err}
	}
	n := binary.BigEndian.Uint32(lb[:])
	if n == 0 || n > maxFrame {
		return 0, nil, &TransportError{Op: "read-header", Err: fmt.Errorf("bad frame length %d", n)}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, &TransportError{Op: "read-payload", Err: err}
	}
	return buf[0], buf[1:], nil
}

// PeerClient drives the fixed RPC call sequence against one connected
// peer: set_base, changes, set_actions, get_signatures,
// get_detailed_changes, apply_detailed_changes, save_state.
type PeerClient struct {
	rw io.ReadWriteCloser
}

// NewPeerClient wraps an already-connected transport (the result of a
// Dial). The transport is typically the stdio pipes of a spawned
// process or an ssh child.
func NewPeerClient(rw io.ReadWriteCloser) *PeerClient { return &PeerClient{rw: rw} }

func (c *PeerClient) call(method peerMethod, payload []byte) ([]byte, error) {
	if err := writeFrame(c.rw, byte(method), payload); err != nil {
		return nil, err
	}
	status, resp, err := readFrame(c.rw)
	if err != nil {
		return nil, err
	}
	if status == statusError {
		kind, rest, derr := decstr(resp)
		if derr != nil {
			return nil, &TransportError{Op: "decode-error", Err: derr}
		}
		msg, _, derr := decstr(rest)
		if derr != nil {
			return nil, &TransportError{Op: "decode-error", Err: derr}
		}
		return nil, &RPCError{Kind: kind, Message: msg}
	}
	return resp, nil
}

// SetBase sends set_base(path).
func (c *PeerClient) SetBase(path string) error {
	_, err := c.call(methodSetBase, appendStr(nil, path))
	return err
}

// Changes sends changes(path, locations, ignore, initiatorID).
func (c *PeerClient) Changes(path string, locs Locations, ignore Ignore, initiatorID string) ([]Change, error) {
	b := appendStr(nil, path)
	b = appendLocations(b, locs)
	b = appendIgnore(b, ignore)
	b = appendStr(b, initiatorID)

	resp, err := c.call(methodChanges, b)
	if err != nil {
		return nil, err
	}
	_, changes, err := takeChanges(resp)
	return changes, err
}

// SetActions sends set_actions(actions) — the caller is responsible for
// passing Reverse(actions), since the peer applies from its own
// perspective.
func (c *PeerClient) SetActions(actions []Action) error {
	_, err := c.call(methodSetActions, appendActions(nil, actions))
	return err
}

// GetSignatures sends get_signatures().
func (c *PeerClient) GetSignatures() ([]*Signature, error) {
	resp, err := c.call(methodGetSignatures, nil)
	if err != nil {
		return nil, err
	}
	_, sigs, err := takeSignatures(resp)
	return sigs, err
}

// GetDetailedChanges sends get_detailed_changes(sigs).
func (c *PeerClient) GetDetailedChanges(sigs []*Signature) ([]ChangeDetail, error) {
	resp, err := c.call(methodGetDetailedChanges, appendSignatures(nil, sigs))
	if err != nil {
		return nil, err
	}
	_, details, err := takeChangeDetails(resp)
	return details, err
}

// ApplyDetailedChanges sends apply_detailed_changes(details).
func (c *PeerClient) ApplyDetailedChanges(details []ChangeDetail) error {
	_, err := c.call(methodApplyDetailedChanges, appendChangeDetails(nil, details))
	return err
}

// SaveState sends save_state().
func (c *PeerClient) SaveState() error {
	_, err := c.call(methodSaveState, nil)
	return err
}

// Close closes the underlying transport.
func (c *PeerClient) Close() error { return c.rw.Close() }

// PeerServer is the per-session mutable state the dispatch loop owns
// while serving one peer connection: base, allOld, actions and
// initiatorID live here, never as process-wide globals.
type PeerServer struct {
	base        string
	initiatorID string
	locations   Locations
	ignore      Ignore
	allOld      []Entry
	actions     []Action
	newEntries  []Entry
	log         logger.Logger
}

// NewPeerServer creates a server session rooted at base. log may be
// nil, in which case scan warnings on the remote side are discarded
// rather than reported anywhere.
func NewPeerServer(base string, log logger.Logger) *PeerServer {
	return &PeerServer{base: base, log: log}
}

// Serve reads and dispatches frames from rw until a clean EOF (normal
// termination) or a transport error.
func (s *PeerServer) Serve(rw io.ReadWriteCloser) error {
	for {
		tag, payload, err := readFrame(rw)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		resp, herr := s.dispatch(peerMethod(tag), payload)
		if herr != nil {
			var rpcErr *RPCError
			if e, ok := herr.(*RPCError); ok {
				rpcErr = e
			} else {
				rpcErr = &RPCError{Kind: classifyErr(herr), Message: herr.Error()}
			}
			eb := appendStr(nil, rpcErr.Kind)
			eb = appendStr(eb, rpcErr.Message)
			if werr := writeFrame(rw, statusError, eb); werr != nil {
				return werr
			}
			continue
		}
		if err := writeFrame(rw, statusOK, resp); err != nil {
			return err
		}
	}
}

func (s *PeerServer) dispatch(method peerMethod, payload []byte) ([]byte, error) {
	switch method {
	case methodSetBase:
		path, _, err := decstr(payload)
		if err != nil {
			return nil, err
		}
		s.base = path
		return nil, nil

	case methodChanges:
		return s.handleChanges(payload)

	case methodSetActions:
		_, actions, err := takeActions(payload)
		if err != nil {
			return nil, err
		}
		s.actions = actions
		return nil, nil

	case methodGetSignatures:
		sigs, err := GetSignatures(s.base, s.actions)
		if err != nil {
			return nil, err
		}
		return appendSignatures(nil, sigs), nil

	case methodGetDetailedChanges:
		_, sigs, err := takeSignatures(payload)
		if err != nil {
			return nil, err
		}
		details, err := GetDetailedChanges(s.base, s.actions, sigs, true)
		if err != nil {
			return nil, err
		}
		return appendChangeDetails(nil, details), nil

	case methodApplyDetailedChanges:
		_, details, err := takeChangeDetails(payload)
		if err != nil {
			return nil, err
		}
		entries, err := ApplyDetailedChanges(s.base, s.actions, details, s.allOld)
		if err != nil {
			return nil, err
		}
		s.newEntries = entries
		return nil, nil

	case methodSaveState:
		path, err := RemoteStatePath(s.initiatorID)
		if err != nil {
			return nil, err
		}
		if err := SaveSnapshot(path, s.newEntries); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, &TransportError{Op: "dispatch", Err: fmt.Errorf("unknown method %d", method)}
	}
}

func (s *PeerServer) handleChanges(payload []byte) ([]byte, error) {
	b, path, err := decstr(payload)
	if err != nil {
		return nil, err
	}
	b, locs, err := takeLocations(b)
	if err != nil {
		return nil, err
	}
	b, ignore, err := takeIgnore(b)
	if err != nil {
		return nil, err
	}
	initiatorID, _, err := decstr(b)
	if err != nil {
		return nil, err
	}

	s.locations = locs
	s.ignore = ignore
	s.initiatorID = initiatorID

	statePath, err := RemoteStatePath(initiatorID)
	if err != nil {
		return nil, err
	}
	old, err := LoadSnapshot(statePath)
	if err != nil {
		return nil, err
	}
	s.allOld = old

	newEntries, err := Scan(s.base, path, locs, ScanOptions{Ignore: ignore})
	if err != nil {
		if _, ok := err.(*ScanError); !ok {
			return nil, err
		}
		if s.log != nil {
			s.log.Warn("scan: %s", err)
		}
		// Tolerant: individual entry scan errors are logged above,
		// not fatal to the RPC.
	}

	changes := DiffEntries(old, newEntries)
	return appendChanges(nil, changes), nil
}
