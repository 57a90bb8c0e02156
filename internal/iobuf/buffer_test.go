package iobuf

import "testing"

func TestAppendConsumeRoundTrip(t *testing.T) {
	b := New()
	slot, err := b.Append(5)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	copy(slot, "hello")
	if b.Available() != 5 {
		t.Fatalf("Available = %d, want 5", b.Available())
	}
	if got := string(b.Bytes()); got != "hello" {
		t.Fatalf("Bytes = %q", got)
	}
	b.Consume(5)
	if b.Available() != 0 {
		t.Fatalf("Available after consume = %d", b.Available())
	}
}

func TestConsumeAllResetsCursors(t *testing.T) {
	b := New()
	slot, _ := b.Append(10)
	copy(slot, "0123456789")
	b.Consume(10)
	if b.Space() != Size {
		t.Fatalf("Space after full consume = %d, want %d", b.Space(), Size)
	}
}

func TestAppendCompactsPartiallyReadBuffer(t *testing.T) {
	b := New()
	slot, _ := b.Append(Size - 10)
	_ = slot
	b.Consume(Size - 20) // leave 10 unread bytes, pout advanced near pin
	// Now Space() is only 10 without compaction; request more than that
	// but no more than the Size-10 bytes free once the 10 unread bytes
	// are compacted to the front, forcing a compact.
	if _, err := b.Append(Size - 10); err != nil {
		t.Fatalf("Append should succeed after compaction: %v", err)
	}
}

func TestAppendFailsWhenGenuinelyFull(t *testing.T) {
	b := New()
	if _, err := b.Append(Size + 1); err != ErrNoSpace {
		t.Fatalf("err = %v, want ErrNoSpace", err)
	}
}

func TestWriteEmptyReturnsErrEmpty(t *testing.T) {
	b := New()
	if _, err := b.Write(-1); err != ErrEmpty {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}
