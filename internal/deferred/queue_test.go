package deferred

import (
	"testing"
	"time"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
)

type fakeWriter struct{ name string }

func (f *fakeWriter) Resend(p ccpacket.Packet) {}

func TestUpsertOrdersBySoonestFireAt(t *testing.T) {
	q := New()
	base := time.Now()
	w := &fakeWriter{"w"}

	q.Upsert("a", &Entry{Writer: w, FireAt: base.Add(3 * time.Second)})
	q.Upsert("b", &Entry{Writer: w, FireAt: base.Add(1 * time.Second)})
	q.Upsert("c", &Entry{Writer: w, FireAt: base.Add(2 * time.Second)})

	first := q.Pop()
	if first.slotKey != "b" {
		t.Fatalf("first popped = %v, want b", first.slotKey)
	}
	second := q.Pop()
	if second.slotKey != "c" {
		t.Fatalf("second popped = %v, want c", second.slotKey)
	}
	third := q.Pop()
	if third.slotKey != "a" {
		t.Fatalf("third popped = %v, want a", third.slotKey)
	}
}

func TestUpsertReplacesExistingSlot(t *testing.T) {
	q := New()
	base := time.Now()
	w := &fakeWriter{"w"}

	q.Upsert("slot", &Entry{Writer: w, FireAt: base.Add(5 * time.Second)})
	q.Upsert("slot", &Entry{Writer: w, FireAt: base.Add(1 * time.Second)})

	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	e := q.Pop()
	if !e.FireAt.Equal(base.Add(1 * time.Second)) {
		t.Fatalf("stale entry survived upsert: %v", e.FireAt)
	}
}

func TestArmCalledWithMinimum(t *testing.T) {
	q := New()
	base := time.Now()
	w := &fakeWriter{"w"}

	var armed time.Time
	q.SetArm(func(next time.Time) { armed = next })

	q.Upsert("a", &Entry{Writer: w, FireAt: base.Add(10 * time.Second)})
	if !armed.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("armed = %v", armed)
	}
	q.Upsert("b", &Entry{Writer: w, FireAt: base.Add(2 * time.Second)})
	if !armed.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("armed not updated to new minimum: %v", armed)
	}
}

func TestArmDisarmsWhenEmpty(t *testing.T) {
	q := New()
	w := &fakeWriter{"w"}
	armCount := 0
	var lastArmed time.Time
	q.SetArm(func(next time.Time) {
		armCount++
		lastArmed = next
	})
	q.Upsert("a", &Entry{Writer: w, FireAt: time.Now()})
	q.Remove("a")
	if !lastArmed.IsZero() {
		t.Fatalf("expected disarm (zero time), got %v", lastArmed)
	}
}

func TestPopEmptyReturnsNil(t *testing.T) {
	q := New()
	if q.Pop() != nil {
		t.Fatal("Pop on empty queue should return nil")
	}
}
