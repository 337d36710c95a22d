// Package control implements C8, the write-command ingress: encode,
// transmit, and track a pending write until the matching state update
// arrives or it times out. The pending-write bookkeeping is modeled on
// the teacher's session.tcp, which sweeps a table of in-flight
// submissions against a periodic tick rather than per-item timers.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ehsgw/gateway/frame"
	"github.com/ehsgw/gateway/repo"
	"github.com/ehsgw/gateway/transport"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout is how long a pending write waits for a matching state
// update before it expires (spec §4.8).
const DefaultTimeout = 30 * time.Second

// PostWriteDelay is the pause before the optional forced re-read.
const PostWriteDelay = time.Second

// sweepInterval controls how often expired pending writes are reaped.
const sweepInterval = time.Second

// Kind classifies a control-ingress failure.
type Kind uint8

const (
	_ Kind = iota
	UnknownVariable
	NotWritable
	BadValue
)

func (k Kind) String() string {
	switch k {
	case UnknownVariable:
		return "unknown variable"
	case NotWritable:
		return "not writable"
	case BadValue:
		return "bad value"
	default:
		return "control error"
	}
}

// RejectedWrite reports a write that could not be accepted at all (it
// never became a pending write).
type RejectedWrite struct {
	Name string
	Kind Kind
	Err  error
}

func (r *RejectedWrite) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("control: %s: %s: %v", r.Name, r.Kind, r.Err)
	}
	return fmt.Sprintf("control: %s: %s", r.Name, r.Kind)
}

func (r *RejectedWrite) Unwrap() error { return r.Err }

// pendingWrite is one in-flight write awaiting a matching state update.
type pendingWrite struct {
	id       xid.ID
	name     string
	deadline time.Time
}

// Ingress is C8. It accepts Write calls, transmits frames via the
// supplied transport, and expires unacknowledged writes.
type Ingress struct {
	repo    *repo.Repository
	xport   transport.Transport
	log     *logrus.Entry
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]pendingWrite

	// Expired counts degraded-operation events: writes whose matching
	// state update never arrived within timeout.
	Expired uint64
}

// New returns an Ingress writing frames for entries in r via x.
func New(r *repo.Repository, x transport.Transport, timeout time.Duration, log *logrus.Entry) *Ingress {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Ingress{
		repo:    r,
		xport:   x,
		log:     log,
		timeout: timeout,
		pending: make(map[string]pendingWrite),
	}
}

// Write resolves name, encodes text, transmits a Write frame, and
// records a pending write. If readAfter is set, a forced single-variable
// Request frame follows after PostWriteDelay. Steps follow spec §4.8.
func (ig *Ingress) Write(ctx context.Context, name, text string, readAfter bool) error {
	entry, ok := ig.repo.ByName(name)
	if !ok {
		return &RejectedWrite{Name: name, Kind: UnknownVariable}
	}
	if !entry.Writable {
		return &RejectedWrite{Name: name, Kind: NotWritable}
	}

	payload, degraded, err := frame.EncodeValue(text, entry)
	if err != nil {
		return &RejectedWrite{Name: name, Kind: BadValue, Err: err}
	}
	if degraded && ig.log != nil {
		ig.log.WithField("variable", name).WithField("text", text).Warn("control: value out of range, sent degraded payload")
	}

	fk, err := fieldKindOf(entry)
	if err != nil {
		return &RejectedWrite{Name: name, Kind: BadValue, Err: err}
	}

	wire := frame.Serialize(frame.NewWriteFrame(entry.Address, fk, payload))
	if _, err := ig.xport.Write(wire); err != nil {
		return err
	}

	id := xid.New()
	ig.mu.Lock()
	ig.pending[name] = pendingWrite{id: id, name: name, deadline: time.Now().Add(ig.timeout)}
	ig.mu.Unlock()

	if readAfter {
		go ig.forceRead(ctx, entry.Address)
	}

	return nil
}

func (ig *Ingress) forceRead(ctx context.Context, addr uint16) {
	t := time.NewTimer(PostWriteDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return
	}

	wire := frame.Serialize(frame.NewRequestFrame(addr))
	if _, err := ig.xport.Write(wire); err != nil && ig.log != nil {
		ig.log.WithError(err).Warn("control: forced re-read write failed")
	}
}

// Observe closes the loop for a pending write when its matching state
// update is decoded, called from the publication path (C9) for every
// successfully decoded message.
func (ig *Ingress) Observe(name string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.pending, name)
}

// Sweep expires pending writes past their deadline, incrementing
// Expired for each. Call it periodically (see RunSweeper).
func (ig *Ingress) Sweep(now time.Time) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	for name, p := range ig.pending {
		if now.After(p.deadline) {
			delete(ig.pending, name)
			ig.Expired++
			if ig.log != nil {
				ig.log.WithField("variable", name).Warn("control: pending write expired without a matching state update")
			}
		}
	}
}

// RunSweeper periodically calls Sweep until ctx is cancelled.
func (ig *Ingress) RunSweeper(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			ig.Sweep(now)
		case <-ctx.Done():
			return
		}
	}
}

func fieldKindOf(e *repo.Entry) (frame.FieldKind, error) {
	switch e.Kind {
	case repo.U8:
		return frame.FieldU8, nil
	case repo.I16:
		return frame.FieldI16, nil
	case repo.I32:
		return frame.FieldI32, nil
	case repo.STRING:
		return frame.FieldString, nil
	case repo.ENUM:
		switch e.UnderlyingWidth() {
		case 1:
			return frame.FieldU8, nil
		case 2:
			return frame.FieldI16, nil
		case 4:
			return frame.FieldI32, nil
		}
	}
	return 0, fmt.Errorf("no wire field kind for %s", e.Kind)
}
