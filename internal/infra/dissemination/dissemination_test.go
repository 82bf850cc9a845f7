package dissemination

import (
	"testing"

	"github.com/ringmesh/ringmesh/internal/domain"
)

func TestNew_DefaultK(t *testing.T) {
	b := New(0, nil)
	if b.k != DefaultK {
		t.Errorf("k = %d, want %d", b.k, DefaultK)
	}
}

func TestGetChanges_EmptyWhenPeerChecksumAgrees(t *testing.T) {
	b := New(3, func() uint64 { return 77 })
	b.Recompute(4)
	b.Record(domain.Change{Address: "n2", Status: domain.StatusAlive, Incarnation: 1})

	if changes := b.GetChanges(77, "n3"); len(changes) != 0 {
		t.Errorf("a converged peer should receive no piggyback, got %+v", changes)
	}
	// Agreement must not burn the entry's piggyback budget.
	if changes := b.GetChanges(12, "n3"); len(changes) != 1 {
		t.Errorf("a diverged peer should still receive the change, got %+v", changes)
	}
}

func TestRecord_ReplacesPriorEntryForSameAddress(t *testing.T) {
	b := New(3, nil)
	b.Recompute(4)
	b.Record(domain.Change{Address: "n2", Status: domain.StatusAlive, Incarnation: 1})
	b.Record(domain.Change{Address: "n2", Status: domain.StatusSuspect, Incarnation: 2})

	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
	changes := b.GetChanges(0, "")
	if len(changes) != 1 || changes[0].Status != domain.StatusSuspect {
		t.Errorf("GetChanges = %+v, want one suspect change", changes)
	}
}

func TestGetChanges_SkipsSourcePeer(t *testing.T) {
	b := New(3, nil)
	b.Recompute(4)
	b.Record(domain.Change{Address: "n2", Status: domain.StatusAlive, Incarnation: 1, Source: "n3"})

	changes := b.GetChanges(0, "n3")
	if len(changes) != 0 {
		t.Errorf("GetChanges should skip entries sourced from the requesting peer, got %+v", changes)
	}

	changes = b.GetChanges(0, "n4")
	if len(changes) != 1 {
		t.Errorf("GetChanges should return entries not sourced from the requesting peer, got %+v", changes)
	}
}

func TestGetChanges_EvictsAtMaxPiggybackCount(t *testing.T) {
	b := New(1, nil)
	b.Recompute(1) // maxPiggybackCount = ceil(log2(2))*1 = 1

	b.Record(domain.Change{Address: "n2", Status: domain.StatusAlive, Incarnation: 1})

	first := b.GetChanges(0, "")
	if len(first) != 1 {
		t.Fatalf("first GetChanges = %+v, want 1 entry", first)
	}
	if b.Len() != 0 {
		t.Errorf("entry should have been evicted after reaching maxPiggybackCount, Len() = %d", b.Len())
	}

	second := b.GetChanges(0, "")
	if len(second) != 0 {
		t.Errorf("evicted entry should not be returned again, got %+v", second)
	}
}

func TestRecompute_FiresAdjustedEventOnChange(t *testing.T) {
	b := New(2, nil)
	var got []AdjustedEvent
	b.OnAdjusted(func(e AdjustedEvent) { got = append(got, e) })

	b.Recompute(10)
	if len(got) != 1 {
		t.Fatalf("expected 1 adjusted event, got %d", len(got))
	}
	if got[0].MemberCount != 10 {
		t.Errorf("MemberCount = %d, want 10", got[0].MemberCount)
	}

	b.Recompute(10)
	if len(got) != 1 {
		t.Error("recompute with unchanged member count should not refire the adjusted event")
	}
}

func TestCeilLog2(t *testing.T) {
	cases := map[int]int{1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 9: 4}
	for n, want := range cases {
		if got := ceilLog2(n); got != want {
			t.Errorf("ceilLog2(%d) = %d, want %d", n, got, want)
		}
	}
}
