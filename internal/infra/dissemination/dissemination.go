// Package dissemination implements infection-style change propagation: a
// buffer of the most recent Change per address, piggybacked on outgoing
// protocol messages until it has been retransmitted enough times for the
// whole cluster to plausibly have seen it. Split out of the teacher's
// gossip.SWIM.broadcast/bcastLeft fields (internal/infra/gossip/swim.go)
// into its own package so it can be reasoned about and tested independently
// of the probe cycle that consumes it.
package dissemination

import (
	"math"
	"sort"
	"sync"

	"github.com/ringmesh/ringmesh/internal/domain"
)

// AdjustedEvent is delivered whenever maxPiggybackCount is recomputed
// because the member set size changed.
type AdjustedEvent struct {
	MemberCount       int
	MaxPiggybackCount int
}

// entry wraps a Change with the local-only piggyback counter. PiggybackCount
// is never part of domain.Change because it must not be transmitted as
// authoritative state — it is purely this buffer's retransmission
// bookkeeping.
type entry struct {
	change         domain.Change
	piggybackCount int
}

// Buffer holds at most one pending Change per address and hands out a
// piggyback batch, ascending by piggyback count, each time GetChanges is
// called.
type Buffer struct {
	mu                sync.Mutex
	k                 int
	entries           map[string]*entry
	maxPiggybackCount int
	localChecksum     func() uint64
	onAdjusted        func(AdjustedEvent)
}

// New creates a Buffer. k is the small retransmission constant multiplied
// into maxPiggybackCount; DefaultK matches the teacher's Lambda default.
// localChecksum reports the current membership checksum so GetChanges can
// recognize an already-converged peer; nil disables that short-circuit.
func New(k int, localChecksum func() uint64) *Buffer {
	if k <= 0 {
		k = DefaultK
	}
	b := &Buffer{k: k, entries: make(map[string]*entry), localChecksum: localChecksum}
	b.recompute(0)
	return b
}

// DefaultK mirrors the teacher's gossip.Config.Lambda default.
const DefaultK = 3

// OnAdjusted registers the callback fired whenever maxPiggybackCount changes.
func (b *Buffer) OnAdjusted(fn func(AdjustedEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onAdjusted = fn
}

// Record inserts or replaces the buffered change for c.Address with a fresh
// piggybackCount of zero, as required whenever Membership.Apply accepts a
// change.
func (b *Buffer) Record(c domain.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[c.Address] = &entry{change: c}
}

// Recompute updates maxPiggybackCount for the given member count N and
// prunes any entries whose piggyback count has now reached it. Callers invoke this whenever the
// membership size changes.
func (b *Buffer) Recompute(memberCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recompute(memberCount)
}

func (b *Buffer) recompute(memberCount int) {
	next := ceilLog2(memberCount+1) * b.k
	if next < 1 {
		next = b.k
	}
	if next == b.maxPiggybackCount {
		return
	}
	b.maxPiggybackCount = next
	for addr, e := range b.entries {
		if e.piggybackCount >= b.maxPiggybackCount {
			delete(b.entries, addr)
		}
	}
	if b.onAdjusted != nil {
		b.onAdjusted(AdjustedEvent{MemberCount: memberCount, MaxPiggybackCount: next})
	}
}

// GetChanges returns up to maxPiggybackCount buffered changes, ascending by
// piggybackCount (least-disseminated first), skipping any entry whose
// Source equals peerAddress so a change is never echoed back to the peer
// that originated it. When peerChecksum matches the local membership
// checksum the peer has already converged and an empty batch is returned
// without burning any entry's piggyback budget.
func (b *Buffer) GetChanges(peerChecksum uint64, peerAddress string) []domain.Change {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.localChecksum != nil && peerChecksum == b.localChecksum() {
		return nil
	}

	candidates := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.change.Source != "" && e.change.Source == peerAddress {
			continue
		}
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].piggybackCount < candidates[j].piggybackCount
	})

	max := b.maxPiggybackCount
	if len(candidates) > max && max > 0 {
		candidates = candidates[:max]
	}

	out := make([]domain.Change, 0, len(candidates))
	for _, e := range candidates {
		out = append(out, e.change)
		e.piggybackCount++
		if e.piggybackCount >= b.maxPiggybackCount {
			delete(b.entries, e.change.Address)
		}
	}
	return out
}

// Len reports the number of changes currently buffered, for observability.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// MaxPiggybackCount reports the current cap, for observability.
func (b *Buffer) MaxPiggybackCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxPiggybackCount
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}
