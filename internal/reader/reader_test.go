package reader

import (
	"testing"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
	"github.com/boxofrox/ptzmixer/internal/codec/pelcod"
	"github.com/boxofrox/ptzmixer/internal/iobuf"
	"github.com/boxofrox/ptzmixer/internal/ptzlog"
)

type fakeWriter struct {
	packets []ccpacket.Packet
}

func (w *fakeWriter) DoWrite(pkt *ccpacket.Packet) int {
	w.packets = append(w.packets, pkt.Clone())
	return 1
}

func feed(buf *iobuf.Buffer, data []byte) {
	dst, _ := buf.Append(len(data))
	copy(dst, data)
}

func TestPelcoDReaderDispatchesAndClears(t *testing.T) {
	r, err := New("cam1", "pelco_d", ptzlog.Discard)
	if err != nil {
		t.Fatal(err)
	}
	w := &fakeWriter{}
	r.AddWriter(w, 1, 10, true, 0)

	var p ccpacket.Packet
	p.Receiver = 3
	p.SetPan(ccpacket.PanRight, 1000)
	frames := pelcod.Encode(&p)
	if len(frames) != 1 {
		t.Fatalf("expected one pelco-d frame, got %d", len(frames))
	}

	rx := iobuf.New()
	feed(rx, frames[0][:])
	r.OnReadable(rx)

	if len(w.packets) != 1 {
		t.Fatalf("writer received %d packets, want 1", len(w.packets))
	}
	if w.packets[0].Receiver != 3 || w.packets[0].Pan != ccpacket.PanRight {
		t.Fatalf("unexpected dispatched packet: %+v", w.packets[0])
	}
	if r.Packet.Pan != ccpacket.PanNone {
		t.Fatalf("reader packet should clear pan after dispatch, got %+v", r.Packet)
	}
}

func TestReaderSkipsOutOfRangeWriter(t *testing.T) {
	r, err := New("cam1", "pelco_d", ptzlog.Discard)
	if err != nil {
		t.Fatal(err)
	}
	w := &fakeWriter{}
	r.AddWriter(w, 100, 200, true, 0)

	var p ccpacket.Packet
	p.Receiver = 3
	p.SetPan(ccpacket.PanRight, 1000)
	frames := pelcod.Encode(&p)

	rx := iobuf.New()
	feed(rx, frames[0][:])
	r.OnReadable(rx)

	if len(w.packets) != 0 {
		t.Fatalf("out-of-range writer should not receive a packet: %v", w.packets)
	}
}

func TestReaderWaitsForIncompleteFrame(t *testing.T) {
	r, err := New("cam1", "pelco_d", ptzlog.Discard)
	if err != nil {
		t.Fatal(err)
	}
	w := &fakeWriter{}
	r.AddWriter(w, 1, 10, true, 0)

	var p ccpacket.Packet
	p.Receiver = 3
	p.SetPan(ccpacket.PanRight, 1000)
	frames := pelcod.Encode(&p)

	rx := iobuf.New()
	feed(rx, frames[0][:pelcod.Size-1])
	r.OnReadable(rx)

	if len(w.packets) != 0 {
		t.Fatalf("incomplete frame should not dispatch: %v", w.packets)
	}
	if rx.Available() != pelcod.Size-1 {
		t.Fatalf("incomplete frame should remain buffered, available=%d", rx.Available())
	}
}

func TestPreviousNextCameraClampToRange(t *testing.T) {
	r, err := New("joy", "joystick", ptzlog.Discard)
	if err != nil {
		t.Fatal(err)
	}
	r.Packet.Receiver = 0
	r.PreviousCamera()
	if r.Packet.Receiver != 0 {
		t.Fatalf("PreviousCamera should clamp at 0, got %d", r.Packet.Receiver)
	}
	r.Packet.Receiver = 1024
	r.NextCamera()
	if r.Packet.Receiver != 1024 {
		t.Fatalf("NextCamera should clamp at 1024, got %d", r.Packet.Receiver)
	}
}

func TestUnknownProtocolErrors(t *testing.T) {
	if _, err := New("x", "nonsense", ptzlog.Discard); err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}
