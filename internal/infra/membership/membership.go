// Package membership holds the authoritative view of cluster state: the set
// of known Members keyed by address, and the single reconciliation rule that
// decides whether an incoming Change is accepted or discarded. It is the
// SWIM "membership list" component, split out of the teacher's monolithic
// gossip.SWIM struct (internal/infra/gossip/swim.go) into its own,
// independently testable package.
package membership

import (
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/ringmesh/ringmesh/internal/domain"
)

// Listener receives every accepted membership update.
type Listener func(domain.MemberUpdate)

// Membership is the thread-safe, authoritative set of known Members.
// Every Change goes through Apply, so a listener can never observe a
// Change that failed the precedence rule. The only mutations that bypass
// Apply are TransitionSelf (local lifecycle moves of this node), and
// SeedIncarnation and SetLabels, which notify no listener.
type Membership struct {
	mu       sync.RWMutex
	self     string
	members  map[string]domain.Member
	listener Listener
}

// New creates a Membership with the local node already present and alive
// at incarnation 0.
func New(self string) *Membership {
	m := &Membership{
		self:    self,
		members: make(map[string]domain.Member),
	}
	m.members[self] = domain.Member{
		Address:     self,
		Status:      domain.StatusAlive,
		Incarnation: 0,
	}
	return m
}

// OnUpdate registers the single listener invoked for every accepted change.
// Only one listener is supported, matching the teacher's OnJoin/OnLeave
// single-callback convention — Node composes further fan-out on top.
func (m *Membership) OnUpdate(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

// Self returns the local node's address.
func (m *Membership) Self() string { return m.self }

// SeedIncarnation overrides the local member's starting incarnation before
// any gossip has occurred, used on startup to resume from a durably
// persisted value (internal/infra/incarnstore) instead of always restarting
// at 0, which would let a peer's stale rumor about a prior incarnation
// outrank this process's fresh "alive" announcement.
func (m *Membership) SeedIncarnation(incarnation int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	self := m.members[m.self]
	self.Incarnation = incarnation
	m.members[m.self] = self
}

// Get returns the member at addr, if known.
func (m *Membership) Get(addr string) (domain.Member, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[addr]
	return mem, ok
}

// Members returns a snapshot of all known members.
func (m *Membership) Members() []domain.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Member, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, mem)
	}
	return out
}

// Pingable returns the addresses of every member other than self whose
// status is still eligible for direct probing.
func (m *Membership) Pingable() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.members))
	for addr, mem := range m.members {
		if addr == m.self {
			continue
		}
		if mem.Status.Pingable() {
			out = append(out, addr)
		}
	}
	return out
}

// RandomPingable returns up to n uniformly sampled alive, non-local members,
// excluding the given addresses. Fewer than n may be returned when the
// membership is small.
func (m *Membership) RandomPingable(n int, exclude []string) []domain.Member {
	m.mu.RLock()
	skip := make(map[string]bool, len(exclude)+1)
	skip[m.self] = true
	for _, a := range exclude {
		skip[a] = true
	}
	candidates := make([]domain.Member, 0, len(m.members))
	for addr, mem := range m.members {
		if skip[addr] || !mem.Status.Pingable() {
			continue
		}
		candidates = append(candidates, mem)
	}
	m.mu.RUnlock()

	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates
}

// Apply reconciles a single Change against current state and returns the
// resulting domain.MemberUpdate plus whether the change was accepted. A
// rejected change means the local view already dominates (per
// Change.Overrides) and must not be re-disseminated.
func (m *Membership) Apply(c domain.Change) (domain.MemberUpdate, bool) {
	m.mu.Lock()

	cur, known := m.members[c.Address]
	var updateType domain.UpdateType
	switch {
	case !known:
		updateType = domain.UpdateNew
	default:
		if !c.Overrides(cur.Status, cur.Incarnation) {
			m.mu.Unlock()
			return domain.MemberUpdate{}, false
		}
		updateType = statusToUpdateType(c.Status)
	}

	// Self-refutation: a suspect/faulty claim about this node is never
	// accepted. Instead, bump our incarnation past the claim's and restate
	// alive, so the refutation outranks the rumor everywhere it has spread.
	if c.Address == m.self && (c.Status == domain.StatusSuspect || c.Status == domain.StatusFaulty) {
		next := cur.Incarnation
		if c.Incarnation > next {
			next = c.Incarnation
		}
		next++
		refuted := domain.Member{
			Address:     m.self,
			Status:      domain.StatusAlive,
			Incarnation: next,
			Labels:      cur.Labels,
		}
		m.members[m.self] = refuted
		m.mu.Unlock()
		refutation := domain.MemberUpdate{Type: domain.UpdateAlive, Member: refuted}
		m.notify(refutation)
		return refutation, true
	}

	next := domain.Member{
		Address:     c.Address,
		Status:      c.Status,
		Incarnation: c.Incarnation,
		Labels:      cur.Labels,
	}
	m.members[c.Address] = next
	m.mu.Unlock()

	update := domain.MemberUpdate{Type: updateType, Member: next, Source: c.Source}
	m.notify(update)
	return update, true
}

// Update reconciles a batch of changes in input order and returns the
// updates actually accepted.
func (m *Membership) Update(changes []domain.Change) []domain.MemberUpdate {
	var accepted []domain.MemberUpdate
	for _, c := range changes {
		if u, ok := m.Apply(c); ok {
			accepted = append(accepted, u)
		}
	}
	return accepted
}

// MakeAlive feeds an alive change for addr through Apply.
func (m *Membership) MakeAlive(addr string, incarnation int64) (domain.MemberUpdate, bool) {
	return m.Apply(domain.Change{Address: addr, Status: domain.StatusAlive, Incarnation: incarnation, Source: m.self})
}

// MakeSuspect feeds a suspect change for addr through Apply.
func (m *Membership) MakeSuspect(addr string, incarnation int64) (domain.MemberUpdate, bool) {
	return m.Apply(domain.Change{Address: addr, Status: domain.StatusSuspect, Incarnation: incarnation, Source: m.self})
}

// MakeFaulty feeds a faulty change for addr through Apply.
func (m *Membership) MakeFaulty(addr string, incarnation int64) (domain.MemberUpdate, bool) {
	return m.Apply(domain.Change{Address: addr, Status: domain.StatusFaulty, Incarnation: incarnation, Source: m.self})
}

// MakeLeave feeds a leave change for addr through Apply.
func (m *Membership) MakeLeave(addr string, incarnation int64) (domain.MemberUpdate, bool) {
	return m.Apply(domain.Change{Address: addr, Status: domain.StatusLeave, Incarnation: incarnation, Source: m.self})
}

// MakeDamped feeds a damped change for addr through Apply.
func (m *Membership) MakeDamped(addr string, incarnation int64) (domain.MemberUpdate, bool) {
	return m.Apply(domain.Change{Address: addr, Status: domain.StatusDamped, Incarnation: incarnation, Source: m.self})
}

// TransitionSelf applies a locally-intended status transition for this
// node — adminLeave or a post-leave rejoin — bypassing Apply's
// self-refutation rule, which exists only to reject externally-sourced
// demotions. Moving to alive bumps the incarnation (so the new status
// outruns any stale rumor still in flight); moving to any other status
// keeps the current incarnation.
func (m *Membership) TransitionSelf(status domain.Status) domain.MemberUpdate {
	m.mu.Lock()
	cur := m.members[m.self]
	next := cur.Incarnation
	if status == domain.StatusAlive {
		next = cur.Incarnation + 1
	}
	mem := domain.Member{Address: m.self, Status: status, Incarnation: next, Labels: cur.Labels}
	m.members[m.self] = mem
	m.mu.Unlock()

	update := domain.MemberUpdate{Type: statusToUpdateType(status), Member: mem}
	m.notify(update)
	return update
}

// SetLabels attaches descriptive, non-authoritative labels to a member
// already known to this Membership. It does not itself trigger
// dissemination — callers that want labels gossiped should fold them into
// a subsequent Change.
func (m *Membership) SetLabels(addr string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[addr]
	if !ok {
		return
	}
	mem.Labels = labels
	m.members[addr] = mem
}

func (m *Membership) notify(u domain.MemberUpdate) {
	m.mu.RLock()
	l := m.listener
	m.mu.RUnlock()
	if l != nil {
		l(u)
	}
}

// Checksum computes a deterministic hash of the whole membership view: each
// member's address, status, incarnation, and sorted labels are folded in
// address-sorted order so two nodes with the same accepted changes always
// agree on the same value, matching ringpop-go's checksumString approach.
func (m *Membership) Checksum() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addrs := make([]string, 0, len(m.members))
	for a := range m.members {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	var b strings.Builder
	for _, a := range addrs {
		m.members[a].ChecksumString(&b)
		b.WriteByte(';')
	}
	return xxhash.Sum64String(b.String())
}

func statusToUpdateType(s domain.Status) domain.UpdateType {
	switch s {
	case domain.StatusAlive:
		return domain.UpdateAlive
	case domain.StatusSuspect:
		return domain.UpdateSuspect
	case domain.StatusFaulty:
		return domain.UpdateFaulty
	case domain.StatusLeave:
		return domain.UpdateLeave
	case domain.StatusDamped:
		return domain.UpdateDamped
	default:
		return domain.UpdateAlive
	}
}
