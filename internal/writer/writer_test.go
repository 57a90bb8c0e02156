package writer

import (
	"errors"
	"testing"
	"time"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
	"github.com/boxofrox/ptzmixer/internal/deferred"
	"github.com/boxofrox/ptzmixer/internal/ptzlog"
)

type fakeTarget struct {
	appended     [][]byte
	open         bool
	respPending  int
	respRequired bool
	failAppend   bool
	pending      int
	dropped      int
}

func (t *fakeTarget) Append(data []byte) error {
	if t.failAppend {
		return errors.New("append failed")
	}
	t.appended = append(t.appended, append([]byte(nil), data...))
	t.pending += len(data)
	return nil
}

func (t *fakeTarget) Open() bool { return t.open }

func (t *fakeTarget) MarkRespPending() { t.respPending++ }

func (t *fakeTarget) SetRespRequired() { t.respRequired = true }

func (t *fakeTarget) PendingOut() int { return t.pending }

func (t *fakeTarget) DropPending() {
	t.dropped++
	t.pending = 0
}

func newPelcoDWriter(t *testing.T) (*Writer, *fakeTarget, *deferred.Queue) {
	t.Helper()
	target := &fakeTarget{open: true}
	dq := deferred.New()
	w, err := New("cam1", "pelco_d", "", target, dq, ptzlog.Discard)
	if err != nil {
		t.Fatal(err)
	}
	return w, target, dq
}

func TestDoWriteAppendsAndCountsOut(t *testing.T) {
	w, target, _ := newPelcoDWriter(t)

	var p ccpacket.Packet
	p.Receiver = 3
	p.SetPan(ccpacket.PanRight, 1000)

	if n := w.DoWrite(&p); n != 1 {
		t.Fatalf("DoWrite = %d, want 1", n)
	}
	if len(target.appended) != 1 {
		t.Fatalf("expected one appended frame, got %d", len(target.appended))
	}
	if target.respPending != 1 {
		t.Fatalf("expected MarkRespPending called once, got %d", target.respPending)
	}
}

func TestDoWriteRejectsOutOfRangeReceiver(t *testing.T) {
	w, target, _ := newPelcoDWriter(t)

	var p ccpacket.Packet
	p.Receiver = 9999
	p.SetPan(ccpacket.PanRight, 1000)

	if n := w.DoWrite(&p); n != 0 {
		t.Fatalf("DoWrite = %d, want 0 for out-of-range receiver", n)
	}
	if len(target.appended) != 0 {
		t.Fatalf("expected no append for out-of-range receiver, got %v", target.appended)
	}
}

func TestTooSoonDefersInsteadOfSending(t *testing.T) {
	w, target, dq := newPelcoDWriter(t)

	var p ccpacket.Packet
	p.Receiver = 3
	p.SetPan(ccpacket.PanRight, 1000)

	if n := w.DoWrite(&p); n != 1 {
		t.Fatalf("first DoWrite = %d, want 1", n)
	}
	if n := w.DoWrite(&p); n != 0 {
		t.Fatalf("immediate second DoWrite = %d, want 0 (too soon)", n)
	}
	if len(target.appended) != 1 {
		t.Fatalf("expected only the first send to append, got %d", len(target.appended))
	}
	if dq.Len() != 1 {
		t.Fatalf("expected a deferred retry queued, len=%d", dq.Len())
	}
}

func TestStopPacketDoubleDefers(t *testing.T) {
	w, _, dq := newPelcoDWriter(t)

	var p ccpacket.Packet
	p.Receiver = 3
	// stop packet as the Pelco-D decoder produces it: pan LEFT and
	// tilt DOWN at speed 0, nothing else set
	p.SetPan(ccpacket.PanLeft, 0)
	p.SetTilt(ccpacket.TiltDown, 0)

	if n := w.DoWrite(&p); n != 1 {
		t.Fatalf("DoWrite = %d, want 1", n)
	}
	if dq.Len() != 1 {
		t.Fatalf("expected one deferred guaranteed resend for stop packet, len=%d", dq.Len())
	}
	if w.deferCount[2] != 1 {
		t.Fatalf("expected deferCount incremented to 1, got %d", w.deferCount[2])
	}
}

func TestResendReentersDoWrite(t *testing.T) {
	w, target, _ := newPelcoDWriter(t)

	var p ccpacket.Packet
	p.Receiver = 3
	p.SetPan(ccpacket.PanRight, 1000)

	w.lastSent[2] = time.Now().Add(-time.Hour)
	w.Resend(p)

	if len(target.appended) != 1 {
		t.Fatalf("expected Resend to append one frame, got %d", len(target.appended))
	}
}

func TestAxisWriterMarksRespRequired(t *testing.T) {
	target := &fakeTarget{open: true}
	dq := deferred.New()
	if _, err := New("cam1", "axis", "user:pass", target, dq, ptzlog.Discard); err != nil {
		t.Fatal(err)
	}
	if !target.respRequired {
		t.Fatal("expected axis writer to call SetRespRequired at construction")
	}
}

func TestAxisWriterDropsStaleBufferedRequest(t *testing.T) {
	target := &fakeTarget{open: true}
	dq := deferred.New()
	w, err := New("cam1", "axis", "", target, dq, ptzlog.Discard)
	if err != nil {
		t.Fatal(err)
	}

	var p1 ccpacket.Packet
	p1.Receiver = 1
	p1.SetPan(ccpacket.PanLeft, 500)
	if n := w.DoWrite(&p1); n != 1 {
		t.Fatalf("expected first write to succeed, got %d", n)
	}
	if target.dropped != 0 {
		t.Fatalf("expected no drop on first write, got %d", target.dropped)
	}

	var p2 ccpacket.Packet
	p2.Receiver = 1
	p2.SetPan(ccpacket.PanRight, 500)
	w.lastSent[0] = time.Now().Add(-time.Hour)
	if n := w.DoWrite(&p2); n != 1 {
		t.Fatalf("expected second write to succeed, got %d", n)
	}
	if target.dropped != 1 {
		t.Fatalf("expected stale buffered request dropped once, got %d", target.dropped)
	}
	if len(target.appended) != 2 {
		t.Fatalf("expected two appended requests, got %d", len(target.appended))
	}
}

func TestUnknownProtocolErrors(t *testing.T) {
	target := &fakeTarget{}
	dq := deferred.New()
	if _, err := New("x", "nonsense", "", target, dq, ptzlog.Discard); err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}
