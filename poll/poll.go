// Package poll implements C7, the three staggered read-request
// schedulers ("live", "settings", "static"), the way the teacher's
// session.tcp drives a select loop over several tickers except here each
// group is cadence-independent and writes outbound frames instead of
// class 1/2 datagrams.
package poll

import (
	"context"
	"time"

	"github.com/ehsgw/gateway/frame"
	"github.com/ehsgw/gateway/repo"
	"github.com/ehsgw/gateway/transport"
	"github.com/sirupsen/logrus"
)

// ChunkSize is the maximum variable count per Read frame, empirically
// the most that fits a single bus frame (spec §4.7).
const ChunkSize = 10

// InterChunkPause is the delay observed between chunks within one tick.
const InterChunkPause = 500 * time.Millisecond

// Group is one polling schedule: a name, a cadence and the resolved wire
// addresses of its variables, in configured order.
type Group struct {
	Name      string
	Cadence   time.Duration
	Addresses []uint16

	index int // position among sibling groups, used for startup stagger
}

// NewGroup resolves names against r and drops unresolved entries with a
// warning, per the group invariant in spec §3; the returned Group is
// ready to run even if some names were dropped.
func NewGroup(name string, cadence time.Duration, names []string, index int, r *repo.Repository, log *logrus.Entry) Group {
	resolved, dropped := r.Names(names)
	if len(dropped) > 0 && log != nil {
		log.WithField("group", name).WithField("dropped", dropped).Warn("poll: dropped unresolved variables")
	}

	addrs := make([]uint16, 0, len(resolved))
	for _, n := range resolved {
		if e, ok := r.ByName(n); ok {
			addrs = append(addrs, e.Address)
		}
	}

	return Group{Name: name, Cadence: cadence, Addresses: addrs, index: index}
}

// Scheduler drives one Group's ticks against a transport.
type Scheduler struct {
	group  Group
	xport  transport.Transport
	log    *logrus.Entry
	chunks [][]uint16

	staggerUnit time.Duration // scaled by group.index for the startup stagger
}

// New returns a Scheduler for g writing read-request frames to x.
func New(g Group, x transport.Transport, staggerUnit time.Duration, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		group:       g,
		xport:       x,
		log:         log,
		chunks:      chunk(g.Addresses, ChunkSize),
		staggerUnit: staggerUnit,
	}
}

// Run loops until ctx is cancelled, observing the shutdown token at every
// sleep and write boundary (spec §4.7, §5).
func (s *Scheduler) Run(ctx context.Context) error {
	stagger := time.Duration(s.group.index) * s.staggerUnit
	if stagger > 0 {
		if err := sleepCtx(ctx, stagger); err != nil {
			return nil
		}
	}

	for {
		start := time.Now()

		if err := s.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if s.log != nil {
				s.log.WithField("group", s.group.Name).WithError(err).Warn("poll: tick failed, continuing at next cadence")
			}
		}

		elapsed := time.Since(start)
		remaining := s.group.Cadence - elapsed
		if remaining < 0 {
			remaining = 0
		}
		if err := sleepCtx(ctx, remaining); err != nil {
			return nil
		}
	}
}

// tick writes one Read frame per chunk, strictly in order, pausing
// between chunks. A write failure aborts the remaining chunks for this
// tick; the next tick proceeds on schedule regardless (spec §4.7).
func (s *Scheduler) tick(ctx context.Context) error {
	for i, c := range s.chunks {
		if ctx.Err() != nil {
			return nil
		}

		wire := frame.Serialize(frame.NewReadFrame(c))
		if _, err := s.xport.Write(wire); err != nil {
			return err
		}

		if i < len(s.chunks)-1 {
			if err := sleepCtx(ctx, InterChunkPause); err != nil {
				return nil
			}
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func chunk(addrs []uint16, size int) [][]uint16 {
	if len(addrs) == 0 {
		return nil
	}
	var chunks [][]uint16
	for size < len(addrs) {
		addrs, chunks = addrs[size:], append(chunks, addrs[:size:size])
	}
	return append(chunks, addrs)
}
