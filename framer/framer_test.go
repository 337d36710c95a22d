package framer

import (
	"testing"
	"time"

	"github.com/ehsgw/gateway/frame"
	"github.com/ehsgw/gateway/quality"
	"github.com/ehsgw/gateway/transport"
)

func TestFramerEmitsValidFrame(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()

	mon := quality.New(nil, nil)
	f := New(a, mon, nil)

	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(done) }()

	wire := frame.Serialize(frame.NewReadFrame([]uint16{0x4203}))
	if _, err := b.Write(wire); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-f.Frames:
		fr, err := Decode(got)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(fr.Messages) != 1 || fr.Messages[0].Address != 0x4203 {
			t.Fatalf("unexpected frame: %+v", fr)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for candidate frame")
	}

	close(done)
	<-errCh
}

func TestFramerDropsShortGarbage(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()

	mon := quality.New(nil, nil)
	f := New(a, mon, nil)

	done := make(chan struct{})
	go f.Run(done)

	// A start pair followed by a zero length byte: the declared total
	// of 2 bytes is already reached at 3, so a 3-byte candidate under
	// the 15-byte floor is dispatched and dropped.
	garbage := []byte{0x32, 0x00, 0x00, 0x34}
	if _, err := b.Write(garbage); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Follow with a real frame so the scanner resynchronizes and we have
	// something to wait on.
	wire := frame.Serialize(frame.NewReadFrame([]uint16{0x4203}))
	if _, err := b.Write(wire); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-f.Frames:
		if len(got) != len(wire) {
			t.Fatalf("expected the real frame to follow the dropped garbage, got %d bytes", len(got))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for candidate frame after garbage")
	}

	close(done)
}

func TestFramerResynchronizesAfterBadEndMarker(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()

	mon := quality.New(nil, nil)
	f := New(a, mon, nil)

	done := make(chan struct{})
	go f.Run(done)

	good := frame.Serialize(frame.NewReadFrame([]uint16{0x4203}))
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] = 0x33 // wrong end marker, scenario 4 of spec §7

	if _, err := b.Write(bad); err != nil {
		t.Fatalf("write bad: %v", err)
	}
	if _, err := b.Write(good); err != nil {
		t.Fatalf("write good: %v", err)
	}

	select {
	case got := <-f.Frames:
		if got[len(got)-1] != 0x34 {
			t.Fatalf("expected the valid frame, got end marker 0x%x", got[len(got)-1])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resynchronized frame")
	}

	snap := mon.Snapshot()
	if snap.InvalidPackets == 0 {
		t.Fatal("expected the bad-end-marker frame to be classified invalid")
	}

	close(done)
}
