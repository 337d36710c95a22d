// Package transport abstracts the byte-stream underneath the bus: a
// serial line or a plain TCP socket. It exposes only open, bounded read,
// exact write and close — framing and protocol semantics live above it,
// in the framer and frame packages. See spec §4.4.
package transport

import (
	"errors"
	"io"
)

// ErrTransport wraps any read/write/dial failure so that the runtime can
// recognize a recoverable condition regardless of which variant produced
// it, the way session.ErrConnLost does for the teacher's session layer.
type ErrTransport struct {
	Op  string // "open", "read" or "write"
	Err error
}

func (e *ErrTransport) Error() string { return "transport: " + e.Op + ": " + e.Err.Error() }
func (e *ErrTransport) Unwrap() error { return e.Err }

// ErrClosed is a sentinel for a closed transport. The serial, TCP and
// pipe transports in this package do not return it: their Read/Write
// after Close return an *ErrTransport wrapping the underlying error.
var ErrClosed = errors.New("transport: closed")

// Transport is the byte-stream abstraction C4 offers to the framer
// (reads), the polling scheduler and control ingress (writes).
type Transport interface {
	// Read fills p with up to len(p) bytes, blocking until at least one
	// byte is available, following io.Reader semantics.
	io.Reader

	// Write sends all of p or returns an error; partial writes are not
	// surfaced to callers.
	io.Writer

	io.Closer
}
