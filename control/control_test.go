package control

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ehsgw/gateway/frame"
	"github.com/ehsgw/gateway/repo"
	"github.com/ehsgw/gateway/transport"
)

const sampleDoc = `
variables:
  - {name: VAR_IN_FSV_1031, address: "0x4001", kind: I16, writable: true, reverse: "value * 10"}
  - {name: readonly_var, address: "0x4002", kind: U8}
`

func mustRepo(t *testing.T) *repo.Repository {
	t.Helper()
	r, err := repo.Decode(strings.NewReader(sampleDoc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return r
}

func TestWriteUnknownVariableRejected(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()

	ig := New(mustRepo(t), a, 0, nil)
	err := ig.Write(context.Background(), "does-not-exist", "1", false)
	rej, ok := err.(*RejectedWrite)
	if !ok || rej.Kind != UnknownVariable {
		t.Fatalf("err = %v, want UnknownVariable rejection", err)
	}
}

func TestWriteTransmitsFrameAndTracksPending(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()

	ig := New(mustRepo(t), a, time.Minute, nil)

	done := make(chan error, 1)
	go func() { done <- ig.Write(context.Background(), "VAR_IN_FSV_1031", "55", false) }()

	buf := make([]byte, 256)
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	fr, err := frame.Parse(buf[:n])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fr.Messages) != 1 || fr.Messages[0].Address != 0x4001 {
		t.Fatalf("unexpected frame: %+v", fr)
	}
	want := []byte{0x02, 0x26} // 550 big-endian, see spec write round-trip scenario
	if string(fr.Messages[0].Payload) != string(want) {
		t.Fatalf("payload = % x, want % x", fr.Messages[0].Payload, want)
	}

	if err := <-done; err != nil {
		t.Fatalf("Write: %v", err)
	}

	ig.mu.Lock()
	_, pending := ig.pending["VAR_IN_FSV_1031"]
	ig.mu.Unlock()
	if !pending {
		t.Fatal("expected a pending write to be recorded")
	}
}

func TestObserveClosesPendingWrite(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()

	ig := New(mustRepo(t), a, time.Minute, nil)

	done := make(chan error, 1)
	go func() { done <- ig.Write(context.Background(), "VAR_IN_FSV_1031", "55", false) }()
	buf := make([]byte, 256)
	if _, err := b.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	// the pending write is recorded only after the frame has been sent
	if err := <-done; err != nil {
		t.Fatalf("Write: %v", err)
	}

	ig.Observe("VAR_IN_FSV_1031")

	ig.mu.Lock()
	_, pending := ig.pending["VAR_IN_FSV_1031"]
	ig.mu.Unlock()
	if pending {
		t.Fatal("expected Observe to clear the pending write")
	}
}

func TestSweepExpiresPastDeadline(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()

	ig := New(mustRepo(t), a, time.Millisecond, nil)

	go ig.Write(context.Background(), "VAR_IN_FSV_1031", "55", false)
	buf := make([]byte, 256)
	if _, err := b.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	ig.Sweep(time.Now())

	if ig.Expired != 1 {
		t.Fatalf("Expired = %d, want 1", ig.Expired)
	}
	ig.mu.Lock()
	_, pending := ig.pending["VAR_IN_FSV_1031"]
	ig.mu.Unlock()
	if pending {
		t.Fatal("expected expired write to be removed from pending")
	}
}
