// Package framer scans a continuous byte stream for frame boundaries,
// the way the teacher's media.ft12.Decode scans for FT 1.2 packet
// boundaries, except this bus has no fixed/variable-length framing byte
// and instead carries its own length prefix (see spec §6). Candidate
// frames are handed off for decoding on a separate goroutine so the
// reader never blocks, mirroring session.tcp's recvLoop/dispatch split.
package framer

import (
	"errors"
	"io"

	"github.com/ehsgw/gateway/frame"
	"github.com/ehsgw/gateway/quality"
	"github.com/ehsgw/gateway/transport"
	"github.com/sirupsen/logrus"
)

// Trace activates per-candidate wire logging, mirroring session.Trace in
// the teacher.
var Trace = false

const minCandidateLen = 15 // shorter buffers are dropped as "too short", see spec §4.5

// state names the scanner's position in one frame attempt.
type state uint8

const (
	idle state = iota
	collecting
)

// Framer reads from a transport.Transport and emits validated candidate
// frame buffers on Frames. It classifies every candidate of at least
// minCandidateLen bytes (valid or invalid) with the quality monitor as it
// goes; shorter candidates are dropped without classification.
type Framer struct {
	src transport.Transport
	mon *quality.Monitor
	log *logrus.Entry

	Frames chan []byte // candidate buffers, one complete frame each

	state       state
	prev        byte
	acc         []byte
	declaredLen int
}

// New returns a Framer reading from src and classifying with mon.
func New(src transport.Transport, mon *quality.Monitor, log *logrus.Entry) *Framer {
	return &Framer{
		src:    src,
		mon:    mon,
		log:    log,
		Frames: make(chan []byte, 16),
	}
}

// Run scans src until it returns an error or done is closed. It never
// blocks the caller on decode: each emitted buffer is sent on Frames,
// which the caller (runtime.Runtime) drains on a separate goroutine.
func (f *Framer) Run(done <-chan struct{}) error {
	defer close(f.Frames)

	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			return nil
		default:
		}

		n, err := f.src.Read(buf)
		if n > 0 {
			f.feed(buf[:n], done)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (f *Framer) feed(chunk []byte, done <-chan struct{}) {
	for _, b := range chunk {
		switch f.state {
		case idle:
			if f.prev == 0x32 && b == 0x00 {
				f.acc = append(f.acc[:0], f.prev, b)
				f.state = collecting
			}
			f.prev = b

		case collecting:
			f.acc = append(f.acc, b)
			if len(f.acc) == 3 {
				f.declaredLen = (int(f.acc[1])<<8 | int(f.acc[2])) + 2
			}
			if len(f.acc) >= 3 && len(f.acc) >= f.declaredLen {
				f.dispatch(done)
				f.state = idle
				f.prev = 0
			}
		}
	}
}

func (f *Framer) dispatch(done <-chan struct{}) {
	candidate := append([]byte(nil), f.acc...)

	if len(candidate) < minCandidateLen {
		if f.log != nil {
			f.log.WithField("len", len(candidate)).Debug("framer: candidate too short, dropped")
		}
		return
	}

	valid := candidate[len(candidate)-1] == 0x34
	f.mon.Classify(valid)

	if Trace && f.log != nil {
		f.log.WithField("valid", valid).WithField("bytes", len(candidate)).Trace("framer: candidate scanned")
	}

	if !valid {
		return
	}

	select {
	case f.Frames <- candidate:
	case <-done:
	}
}

// Decode is a convenience wrapper around frame.Parse kept here so
// callers that only hold a Framer need not import frame directly for the
// common case.
func Decode(candidate []byte) (*frame.Frame, error) {
	return frame.Parse(candidate)
}
