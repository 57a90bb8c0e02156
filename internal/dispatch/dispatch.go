// Package dispatch implements the reader-to-writer fan-out graph: each
// reader owns a list of Nodes, one per linked writer, each filtering and
// shifting the packet's receiver address before handing it off, grounded
// directly on original_source/ccreader.c's ccnode_get_receiver and
// ccreader_do_writers.
package dispatch

import "github.com/boxofrox/ptzmixer/internal/ccpacket"

// Writer is the minimal surface a camera control writer exposes to the
// dispatch graph.
type Writer interface {
	DoWrite(pkt *ccpacket.Packet) int
}

// Node links one writer into a reader's dispatch list, filtering and
// shifting receiver addresses.
type Node struct {
	Writer     Writer
	RangeFirst int
	RangeLast  int
	Shift      int
}

// NewNode builds a Node with the wide-open default range ccnode_init
// starts from (1..1024, no shift), for a config directive to narrow.
func NewNode(w Writer) *Node {
	return &Node{Writer: w, RangeFirst: 1, RangeLast: 1024}
}

// SetRange narrows the node's receiver range from a config directive's
// "first [last]" field. hasLast false means the directive named a
// single address, which narrows the range to exactly that address.
//
// original_source's parser stores `node->range_last = -last` because its
// sscanf("%d%d") reads "1-10" as 1 and -10, so the negation restores the
// positive upper bound. internal/config splits the field itself and
// passes last already positive, so it is stored as is (DESIGN.md Open
// Question 1): the same inclusive interval.
func (n *Node) SetRange(first, last int, hasLast bool) {
	n.RangeFirst = first
	if hasLast {
		n.RangeLast = last
	} else {
		n.RangeLast = first
	}
}

// SetShift sets the receiver address shift applied after range-filtering.
func (n *Node) SetShift(shift int) {
	n.Shift = shift
}

// receiver adjusts r for this node, returning 0 to mean "drop": r falls
// outside [RangeFirst, RangeLast], or shifting it lands at or below zero.
func (n *Node) receiver(r int) int {
	if r < n.RangeFirst || r > n.RangeLast {
		return 0
	}
	r += n.Shift
	if r < 0 {
		return 0
	}
	return r
}

// DoWriters dispatches pkt to every node in nodes whose adjusted
// receiver is accepted, restoring pkt's original receiver before
// returning. It reports how many writers accepted the packet.
func DoWriters(nodes []*Node, pkt *ccpacket.Packet) int {
	receiver := pkt.Receiver
	res := 0
	for _, n := range nodes {
		if r := n.receiver(receiver); r != 0 {
			pkt.Receiver = r
			res += n.Writer.DoWrite(pkt)
		}
	}
	pkt.Receiver = receiver
	return res
}
