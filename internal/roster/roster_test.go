package roster

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/chaz8081/quizlink/internal/ble"
)

func strPtr(s string) *string { return &s }

func TestUpsertCreatesInOrder(t *testing.T) {
	r := New()

	if created := r.Upsert("p1", nil); !created {
		t.Error("Upsert(p1) created = false, want true")
	}
	r.Upsert("p2", nil)
	if created := r.Upsert("p1", func(p *Peer) { p.State = StateConnected }); created {
		t.Error("second Upsert(p1) created = true, want false")
	}

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len = %d, want 2", len(snap))
	}
	if snap[0].ID != "p1" || snap[1].ID != "p2" {
		t.Errorf("order = [%s %s], want [p1 p2]", snap[0].ID, snap[1].ID)
	}
	if snap[0].State != StateConnected {
		t.Errorf("p1 state = %v, want connected", snap[0].State)
	}
}

func TestUpsertCannotChangeID(t *testing.T) {
	r := New()
	r.Upsert("p1", func(p *Peer) { p.ID = "other" })

	if !r.Contains("p1") {
		t.Fatal("p1 missing")
	}
	p, _ := r.Get("p1")
	if p.ID != "p1" {
		t.Errorf("ID = %q, want p1", p.ID)
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Upsert("p1", nil)
	r.Upsert("p2", nil)
	r.Upsert("p3", nil)

	if !r.Remove("p2") {
		t.Error("Remove(p2) = false, want true")
	}
	if r.Remove("p2") {
		t.Error("second Remove(p2) = true, want false")
	}

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].ID != "p1" || snap[1].ID != "p3" {
		t.Errorf("snapshot = %+v, want [p1 p3]", snap)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	r := New()
	r.Upsert("p1", func(p *Peer) { p.Answer = strPtr("A") })

	snap := r.Snapshot()
	*snap[0].Answer = "Z"

	p, _ := r.Get("p1")
	if *p.Answer != "A" {
		t.Errorf("answer = %q after mutating snapshot, want A", *p.Answer)
	}
}

func TestOnChangeFiresOncePerMutation(t *testing.T) {
	r := New()
	var calls int
	var last []Peer
	cancel := r.OnChange(func(peers []Peer) {
		calls++
		last = peers
	})

	r.Upsert("p1", nil)
	r.Upsert("p1", func(p *Peer) { p.Identity = strPtr("123") })
	r.Remove("missing")
	r.Remove("p1")

	if calls != 3 {
		t.Errorf("calls = %d, want 3 (no call for removing a missing peer)", calls)
	}
	if len(last) != 0 {
		t.Errorf("last snapshot = %+v, want empty", last)
	}

	cancel()
	r.Upsert("p2", nil)
	if calls != 3 {
		t.Errorf("calls = %d after cancel, want 3", calls)
	}
}

func TestUpdateAllIsOneChange(t *testing.T) {
	r := New()
	for _, id := range []ble.PeerID{"p1", "p2", "p3"} {
		r.Upsert(id, func(p *Peer) { p.Answer = strPtr("B") })
	}

	var calls int
	r.OnChange(func([]Peer) { calls++ })
	r.UpdateAll(func(p *Peer) { p.Answer = nil })

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	for _, p := range r.Snapshot() {
		if p.Answer != nil {
			t.Errorf("%s answer = %q, want nil", p.ID, *p.Answer)
		}
	}
}

func TestClear(t *testing.T) {
	r := New()
	var calls int
	r.OnChange(func([]Peer) { calls++ })

	if r.Clear() {
		t.Error("Clear() on empty roster = true")
	}
	r.Upsert("p1", nil)
	r.Upsert("p2", nil)
	if !r.Clear() {
		t.Error("Clear() = false, want true")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestUniquenessUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := New()

	for i := 0; i < 2000; i++ {
		id := ble.PeerID(fmt.Sprintf("p%d", rng.Intn(8)))
		switch rng.Intn(3) {
		case 0, 1:
			r.Upsert(id, func(p *Peer) { p.State = StateConnected })
		case 2:
			r.Remove(id)
		}

		seen := make(map[ble.PeerID]bool)
		for _, p := range r.Snapshot() {
			if seen[p.ID] {
				t.Fatalf("duplicate peer %s after op %d", p.ID, i)
			}
			seen[p.ID] = true
		}
		if len(seen) != r.Len() {
			t.Fatalf("Len() = %d, snapshot has %d", r.Len(), len(seen))
		}
	}
}

func TestStateText(t *testing.T) {
	for _, s := range []State{StateDiscovered, StateConnected} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", s, err)
		}
		var got State
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", b, err)
		}
		if got != s {
			t.Errorf("round trip %v = %v", s, got)
		}
	}

	var s State
	if err := s.UnmarshalText([]byte("lost")); err == nil {
		t.Error("UnmarshalText(lost) should fail")
	}
}
