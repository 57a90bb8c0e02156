// Package deferred implements the time-ordered set of held packets that
// drives re-sends: one entry per (writer, receiver-1) slot, ordered by
// fire-at time, with re-arm-on-insert against a single process-wide timer.
//
// The original source keys a red-black tree on timeval; the design notes
// bless any ordered container with O(log n) peek-min/remove/insert, so
// this is built on container/heap, the only ordered-priority-queue
// primitive anywhere in the retrieval pack.
package deferred

import (
	"container/heap"
	"time"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
)

// WriterTarget is the minimal surface the queue needs from a writer in
// order to re-encode a held packet when its entry fires.
type WriterTarget interface {
	Resend(p ccpacket.Packet)
}

// Entry is one held packet: a copy, the writer owning it, and the slot
// index it occupies in that writer's per-receiver table.
type Entry struct {
	Writer     WriterTarget
	Packet     ccpacket.Packet
	FireAt     time.Time
	LastSentAt time.Time
	RetryCount int

	slotKey any // (writer, receiver-1) identity
	index   int // heap index, maintained by container/heap
}

// entryHeap is the container/heap.Interface implementation; kept
// separate from Queue so Queue's own methods never collide with the
// interface's Push/Pop signatures.
type entryHeap []*Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].FireAt.Before(h[j].FireAt) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a time-ordered min-heap of *Entry, deduplicated by slot key:
// inserting an entry for a slot that already has one removes the old
// instance first.
type Queue struct {
	items  entryHeap
	bySlot map[any]*Entry

	// Arm is invoked after every mutation with the new minimum fire-at
	// time, or the zero Time if the queue is now empty. It is the
	// integration point with the single process-wide timer (internal/timer).
	Arm func(next time.Time)
}

// New returns an empty Queue. Arm may be nil until the caller wires up
// the timer; SetArm can set it afterward.
func New() *Queue {
	return &Queue{bySlot: make(map[any]*Entry)}
}

// SetArm installs the timer-rearm callback.
func (q *Queue) SetArm(arm func(next time.Time)) {
	q.Arm = arm
}

func (q *Queue) rearm() {
	if q.Arm == nil {
		return
	}
	if len(q.items) == 0 {
		q.Arm(time.Time{})
		return
	}
	q.Arm(q.items[0].FireAt)
}

// Upsert inserts or replaces the entry for slotKey, then rearms the
// timer to the new minimum fire-at.
func (q *Queue) Upsert(slotKey any, e *Entry) {
	q.remove(slotKey)
	e.slotKey = slotKey
	q.bySlot[slotKey] = e
	heap.Push(&q.items, e)
	q.rearm()
}

// Remove drops any entry for slotKey, if present, and rearms the timer.
func (q *Queue) Remove(slotKey any) {
	q.remove(slotKey)
	q.rearm()
}

func (q *Queue) remove(slotKey any) {
	old, ok := q.bySlot[slotKey]
	if !ok {
		return
	}
	heap.Remove(&q.items, old.index)
	delete(q.bySlot, slotKey)
}

// Len reports the number of pending entries.
func (q *Queue) Len() int { return len(q.items) }

// PeekFireAt returns the minimum fire-at time and true, or the zero time
// and false if the queue is empty.
func (q *Queue) PeekFireAt() (time.Time, bool) {
	if len(q.items) == 0 {
		return time.Time{}, false
	}
	return q.items[0].FireAt, true
}

// Pop removes and returns the head entry (earliest fire-at), or nil if
// empty. Callers that mutate and reinsert the entry (the normal timer-
// fired path) should follow up with Upsert, which rearms on its own;
// callers that discard the entry outright should call Rearm.
func (q *Queue) Pop() *Entry {
	if len(q.items) == 0 {
		return nil
	}
	e := heap.Pop(&q.items).(*Entry)
	delete(q.bySlot, e.slotKey)
	return e
}

// Rearm recomputes and fires the Arm callback against the current head.
func (q *Queue) Rearm() {
	q.rearm()
}
