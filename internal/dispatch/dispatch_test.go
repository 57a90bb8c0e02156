package dispatch

import (
	"testing"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
)

type fakeWriter struct {
	wrote []int
}

func (w *fakeWriter) DoWrite(pkt *ccpacket.Packet) int {
	w.wrote = append(w.wrote, pkt.Receiver)
	return 1
}

func TestDoWritersFiltersByRange(t *testing.T) {
	in := &fakeWriter{}
	out := &fakeWriter{}
	inNode := NewNode(in)
	inNode.SetRange(1, 10, true)
	outNode := NewNode(out)
	outNode.SetRange(11, 20, true)

	pkt := &ccpacket.Packet{Receiver: 5}
	n := DoWriters([]*Node{inNode, outNode}, pkt)

	if n != 1 {
		t.Fatalf("DoWriters = %d, want 1", n)
	}
	if len(in.wrote) != 1 || in.wrote[0] != 5 {
		t.Fatalf("in writer got %v, want [5]", in.wrote)
	}
	if len(out.wrote) != 0 {
		t.Fatalf("out-of-range writer should not have been called: %v", out.wrote)
	}
	if pkt.Receiver != 5 {
		t.Fatalf("receiver not restored: %d", pkt.Receiver)
	}
}

func TestDoWritersAppliesShift(t *testing.T) {
	w := &fakeWriter{}
	node := NewNode(w)
	node.SetRange(1, 10, true)
	node.SetShift(100)

	pkt := &ccpacket.Packet{Receiver: 3}
	DoWriters([]*Node{node}, pkt)

	if len(w.wrote) != 1 || w.wrote[0] != 103 {
		t.Fatalf("wrote %v, want [103]", w.wrote)
	}
}

func TestDoWritersDropsNegativeShift(t *testing.T) {
	w := &fakeWriter{}
	node := NewNode(w)
	node.SetRange(1, 10, true)
	node.SetShift(-50)

	pkt := &ccpacket.Packet{Receiver: 3}
	n := DoWriters([]*Node{node}, pkt)

	if n != 0 || len(w.wrote) != 0 {
		t.Fatalf("expected drop, got n=%d wrote=%v", n, w.wrote)
	}
}

func TestSetRangeSingleAddress(t *testing.T) {
	node := NewNode(&fakeWriter{})
	node.SetRange(7, 0, false)
	if node.RangeFirst != 7 || node.RangeLast != 7 {
		t.Fatalf("single-address range = [%d,%d], want [7,7]", node.RangeFirst, node.RangeLast)
	}
}
