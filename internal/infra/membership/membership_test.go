package membership

import (
	"testing"

	"github.com/ringmesh/ringmesh/internal/domain"
)

func TestNew_SeedsSelfAlive(t *testing.T) {
	m := New("node-1:7946")
	self, ok := m.Get("node-1:7946")
	if !ok {
		t.Fatal("self should be present after New")
	}
	if self.Status != domain.StatusAlive {
		t.Errorf("self.Status = %s, want alive", self.Status)
	}
	if self.Incarnation != 0 {
		t.Errorf("self.Incarnation = %d, want 0", self.Incarnation)
	}
}

func TestApply_NewMemberAccepted(t *testing.T) {
	m := New("node-1:7946")
	update, ok := m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 0})
	if !ok {
		t.Fatal("new member change should be accepted")
	}
	if update.Type != domain.UpdateNew {
		t.Errorf("update.Type = %s, want new", update.Type)
	}
}

func TestApply_StaleIncarnationRejected(t *testing.T) {
	m := New("node-1:7946")
	m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 5})

	_, ok := m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusSuspect, Incarnation: 3})
	if ok {
		t.Fatal("change at a lower incarnation must be rejected")
	}
	mem, _ := m.Get("node-2:7946")
	if mem.Status != domain.StatusAlive {
		t.Errorf("status = %s, want alive (unchanged)", mem.Status)
	}
}

func TestApply_SameIncarnationHigherPrecedenceAccepted(t *testing.T) {
	m := New("node-1:7946")
	m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 1})

	update, ok := m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusSuspect, Incarnation: 1})
	if !ok {
		t.Fatal("same-incarnation higher-precedence change should be accepted")
	}
	if update.Type != domain.UpdateSuspect {
		t.Errorf("update.Type = %s, want suspect", update.Type)
	}
}

func TestApply_SameIncarnationLowerPrecedenceRejected(t *testing.T) {
	m := New("node-1:7946")
	m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusFaulty, Incarnation: 1})

	_, ok := m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 1})
	if ok {
		t.Fatal("same-incarnation lower-precedence change must be rejected")
	}
}

func TestApply_SelfRefutation(t *testing.T) {
	m := New("node-1:7946")
	update, ok := m.Apply(domain.Change{Address: "node-1:7946", Status: domain.StatusSuspect, Incarnation: 0})
	if !ok {
		t.Fatal("a demotion targeting self should still be accepted as a refutation")
	}
	if update.Type != domain.UpdateAlive {
		t.Errorf("refutation update.Type = %s, want alive", update.Type)
	}
	self, _ := m.Get("node-1:7946")
	if self.Status != domain.StatusAlive {
		t.Errorf("self.Status after refutation = %s, want alive", self.Status)
	}
	if self.Incarnation != 1 {
		t.Errorf("self.Incarnation after refutation = %d, want 1", self.Incarnation)
	}
}

func TestApply_RefutationBumpsPastHigherClaim(t *testing.T) {
	m := New("node-1:7946")
	update, ok := m.Apply(domain.Change{Address: "node-1:7946", Status: domain.StatusFaulty, Incarnation: 7})
	if !ok {
		t.Fatal("a demotion targeting self should be refuted, not dropped")
	}
	if update.Member.Status != domain.StatusAlive || update.Member.Incarnation != 8 {
		t.Errorf("refutation = %+v, want alive at incarnation 8 (one past the claim)", update.Member)
	}
}

func TestApply_IdempotentAdd(t *testing.T) {
	m := New("node-1:7946")
	c := domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 3}
	if _, ok := m.Apply(c); !ok {
		t.Fatal("first add should be accepted")
	}
	if _, ok := m.Apply(c); ok {
		t.Error("re-applying an identical change must be a no-op")
	}
}

func TestUpdate_OwnSnapshotIsNoop(t *testing.T) {
	m := New("node-1:7946")
	m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 3})
	m.Apply(domain.Change{Address: "node-3:7946", Status: domain.StatusSuspect, Incarnation: 1})

	snapshot := m.Members()
	changes := make([]domain.Change, 0, len(snapshot))
	for _, mem := range snapshot {
		if mem.Address == m.Self() {
			continue
		}
		changes = append(changes, domain.Change{Address: mem.Address, Status: mem.Status, Incarnation: mem.Incarnation})
	}

	before := m.Checksum()
	if accepted := m.Update(changes); len(accepted) != 0 {
		t.Errorf("re-applying the membership's own snapshot accepted %d changes, want 0", len(accepted))
	}
	if m.Checksum() != before {
		t.Error("checksum must be unchanged by a no-op batch")
	}
}

func TestMakeWrappers_FeedThroughApply(t *testing.T) {
	m := New("node-1:7946")
	m.MakeAlive("node-2:7946", 1)
	if mem, _ := m.Get("node-2:7946"); mem.Status != domain.StatusAlive {
		t.Errorf("after MakeAlive, status = %s", mem.Status)
	}
	m.MakeSuspect("node-2:7946", 1)
	if mem, _ := m.Get("node-2:7946"); mem.Status != domain.StatusSuspect {
		t.Errorf("after MakeSuspect, status = %s", mem.Status)
	}
	m.MakeFaulty("node-2:7946", 1)
	if mem, _ := m.Get("node-2:7946"); mem.Status != domain.StatusFaulty {
		t.Errorf("after MakeFaulty, status = %s", mem.Status)
	}
}

func TestRandomPingable_HonorsBoundAndExclusions(t *testing.T) {
	m := New("node-1:7946")
	m.MakeAlive("node-2:7946", 1)
	m.MakeAlive("node-3:7946", 1)
	m.MakeAlive("node-4:7946", 1)
	m.MakeFaulty("node-5:7946", 1)

	got := m.RandomPingable(2, []string{"node-2:7946"})
	if len(got) != 2 {
		t.Fatalf("RandomPingable returned %d members, want 2", len(got))
	}
	for _, mem := range got {
		switch mem.Address {
		case "node-1:7946", "node-2:7946", "node-5:7946":
			t.Errorf("RandomPingable returned %s, which is local, excluded, or faulty", mem.Address)
		}
	}

	if got := m.RandomPingable(10, nil); len(got) != 3 {
		t.Errorf("asking for more members than exist should return all %d eligible, got %d", 3, len(got))
	}
}

func TestOnUpdate_ListenerInvoked(t *testing.T) {
	m := New("node-1:7946")
	var got []domain.MemberUpdate
	m.OnUpdate(func(u domain.MemberUpdate) { got = append(got, u) })

	m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 0})
	if len(got) != 1 {
		t.Fatalf("listener invocations = %d, want 1", len(got))
	}
	if got[0].Member.Address != "node-2:7946" {
		t.Errorf("listener saw address %s, want node-2:7946", got[0].Member.Address)
	}
}

func TestPingable_ExcludesSelfAndNonAlive(t *testing.T) {
	m := New("node-1:7946")
	m.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 0})
	m.Apply(domain.Change{Address: "node-3:7946", Status: domain.StatusFaulty, Incarnation: 0})

	pingable := m.Pingable()
	if len(pingable) != 1 || pingable[0] != "node-2:7946" {
		t.Errorf("Pingable() = %v, want [node-2:7946]", pingable)
	}
}

func TestChecksum_DeterministicAcrossEquivalentState(t *testing.T) {
	a := New("node-1:7946")
	a.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 3})

	b := New("node-1:7946")
	b.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusAlive, Incarnation: 3})

	if a.Checksum() != b.Checksum() {
		t.Error("two membership views built from the same changes must checksum equal")
	}

	b.Apply(domain.Change{Address: "node-2:7946", Status: domain.StatusSuspect, Incarnation: 4})
	if a.Checksum() == b.Checksum() {
		t.Error("checksums must differ once state diverges")
	}
}

func TestSeedIncarnation_OverridesStartingValueBeforeGossip(t *testing.T) {
	m := New("node-1:7946")
	m.SeedIncarnation(41)

	self, ok := m.Get("node-1:7946")
	if !ok || self.Incarnation != 41 {
		t.Errorf("self.Incarnation = %d, want 41", self.Incarnation)
	}

	// A stale rumor at or below the seeded incarnation must not override.
	update, accepted := m.Apply(domain.Change{Address: "node-1:7946", Status: domain.StatusSuspect, Incarnation: 41})
	if !accepted {
		t.Fatal("expected self-refutation to be accepted as a change")
	}
	if update.Member.Status != domain.StatusAlive || update.Member.Incarnation != 42 {
		t.Errorf("refutation = %+v, want alive at incarnation 42", update.Member)
	}
}
