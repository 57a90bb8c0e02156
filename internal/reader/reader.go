// Package reader implements the per-channel camera-control decode
// driver (spec §4.3), grounded directly on original_source/ccreader.c:
// it owns one neutral ccpacket.Packet plus the list of dispatch.Nodes
// that fan a completed packet out to writers, and decides per protocol
// whether a packet is cleared after every dispatch (the frame-based
// protocols, each of which re-states its whole command on the wire) or
// left to accumulate across events (joystick, which has no receiver
// field of its own and must remember camera selection/axis state
// between individual button and axis events).
package reader

import (
	"fmt"
	"strings"
	"time"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
	"github.com/boxofrox/ptzmixer/internal/codec/manchester"
	"github.com/boxofrox/ptzmixer/internal/codec/pelcod"
	"github.com/boxofrox/ptzmixer/internal/codec/pelcop"
	"github.com/boxofrox/ptzmixer/internal/codec/vicon"
	"github.com/boxofrox/ptzmixer/internal/dispatch"
	"github.com/boxofrox/ptzmixer/internal/iobuf"
	"github.com/boxofrox/ptzmixer/internal/joystick"
	"github.com/boxofrox/ptzmixer/internal/ptzlog"
	"github.com/boxofrox/ptzmixer/internal/stats"
)

// DefaultTimeout is used for any protocol without its own documented
// hold time (ccreader.h's DEFAULT_TIMEOUT).
const DefaultTimeout = 1000 * time.Millisecond

// Flags holds reader-local behavior bits, mirroring enum rdr_flags_t.
type Flags uint8

// Deadzone marks a pelco_p7 reader, which filters small pan/tilt
// speeds to nothing before dispatch.
const Deadzone Flags = 1 << 0

// step decodes one protocol unit from buf into pkt, returning how many
// bytes to consume (0 means "wait for more data") and whether the
// result should be dispatched to writers.
type step func(buf []byte, pkt *ccpacket.Packet) (consumed int, dispatch bool)

// Reader drives one channel's inbound decode loop and writer fan-out.
type Reader struct {
	Name   string
	Log    ptzlog.Sink
	Stats  *stats.Counters
	Packet ccpacket.Packet

	// LogPackets gates the per-packet "IN" debug line below, wired to
	// the CLI's --packet flag; it is off by default so normal operation
	// doesn't log every decoded command.
	LogPackets bool

	timeout    time.Duration
	clearAfter bool
	step       step
	nodes      []*dispatch.Node
}

// New builds a Reader for protocol, wiring its decode step and default
// timeout per original_source/ccreader.c's ccreader_set_protocol.
func New(name, protocol string, log ptzlog.Sink) (*Reader, error) {
	if log == nil {
		log = ptzlog.Discard
	}
	r := &Reader{Name: name, Log: log, Stats: &stats.Counters{}, timeout: DefaultTimeout}
	switch strings.ToLower(protocol) {
	case "joystick":
		r.step = joystickStep(r)
		r.clearAfter = false
	case "manchester":
		r.step = manchesterStep
		r.clearAfter = true
		r.timeout = 80 * time.Millisecond
	case "pelco_d":
		r.step = pelcoDStep
		r.clearAfter = true
		r.timeout = 15000 * time.Millisecond
	case "pelco_p":
		r.step = pelcoPStep(false)
		r.clearAfter = true
		r.timeout = 15000 * time.Millisecond
	case "pelco_p7":
		r.step = pelcoPStep(true)
		r.clearAfter = true
		r.timeout = 15000 * time.Millisecond
	case "vicon":
		r.step = viconStep
		r.clearAfter = true
		r.timeout = 15000 * time.Millisecond
	default:
		return nil, fmt.Errorf("reader: unknown protocol %q", protocol)
	}
	return r, nil
}

func manchesterStep(buf []byte, pkt *ccpacket.Packet) (int, bool) {
	f, consumed, ok := manchester.Decode(buf)
	if consumed == 0 {
		return 0, false
	}
	if !ok {
		return consumed, false
	}
	manchester.Apply(f, pkt)
	return consumed, true
}

func pelcoDStep(buf []byte, pkt *ccpacket.Packet) (int, bool) {
	f, consumed, ok, _ := pelcod.DecodeFrame(buf)
	if consumed == 0 {
		return 0, false
	}
	if !ok {
		return consumed, false
	}
	pelcod.Apply(f, pkt)
	return consumed, true
}

func pelcoPStep(deadzone bool) step {
	return func(buf []byte, pkt *ccpacket.Packet) (int, bool) {
		f, consumed, ok, _ := pelcop.DecodeFrame(buf)
		if consumed == 0 {
			return 0, false
		}
		if !ok {
			return consumed, false
		}
		pelcop.Apply(f, pkt)
		if deadzone {
			pelcop.ApplyDeadzone(pkt)
		}
		return consumed, true
	}
}

func viconStep(buf []byte, pkt *ccpacket.Packet) (int, bool) {
	f, consumed, ok := vicon.Decode(buf)
	if consumed == 0 {
		return 0, false
	}
	if !ok {
		return consumed, false
	}
	if f.Len == vicon.SizeStatus {
		return consumed, false
	}
	vicon.Apply(f, pkt)
	return consumed, true
}

func joystickStep(nav joystick.Navigator) step {
	return func(buf []byte, pkt *ccpacket.Packet) (int, bool) {
		e, consumed, ok := joystick.Decode(buf)
		if !ok {
			return 0, false
		}
		return consumed, joystick.Apply(pkt, nav, e)
	}
}

// AddWriter links w into the reader's dispatch list with the given
// receiver range/shift, following ccreader_add_writer. hasLast false
// means range names a single address.
func (r *Reader) AddWriter(w dispatch.Writer, first, last int, hasLast bool, shift int) {
	node := dispatch.NewNode(w)
	node.SetRange(first, last, hasLast)
	node.SetShift(shift)
	r.nodes = append(r.nodes, node)
	// ccreader_add_writer resets the reader's starting receiver to this
	// node's range_first unconditionally, every time a writer is linked —
	// not just the first one — so the last-configured writer's range
	// wins as the default camera selection.
	r.Packet.Receiver = node.RangeFirst
}

// PreviousCamera and NextCamera implement joystick.Navigator, moving
// the reader's sticky receiver selection by one and clamping to
// 0..1024, per ccreader_previous_camera/_next_camera.
func (r *Reader) PreviousCamera() {
	if r.Packet.Receiver > 0 {
		r.Packet.Receiver--
	}
}

func (r *Reader) NextCamera() {
	if r.Packet.Receiver < 1024 {
		r.Packet.Receiver++
	}
}

// ProcessPacketNoClear dispatches the current packet to every linked
// writer without resetting it afterward, for protocols (joystick) whose
// packet accumulates state across events.
func (r *Reader) ProcessPacketNoClear() int {
	if r.LogPackets && r.Log != nil {
		r.Log.Logf("IN %s: %+v", r.Name, r.Packet)
	}
	r.Stats.Count(&r.Packet, stats.DomIn)
	r.Packet.SetTimeout(r.timeout)
	return dispatch.DoWriters(r.nodes, &r.Packet)
}

// ProcessPacket dispatches the current packet and then clears it,
// following ccreader_process_packet, for protocols that restate their
// full command in every frame.
func (r *Reader) ProcessPacket() int {
	res := r.ProcessPacketNoClear()
	r.Packet.Clear()
	return res
}

// OnReadable implements ptzchan.Reader, draining as many complete units
// as rx currently holds and dispatching each one that decodes to a
// reportable packet.
func (r *Reader) OnReadable(rx *iobuf.Buffer) {
	for {
		buf := rx.Bytes()
		if len(buf) == 0 {
			return
		}
		consumed, shouldDispatch := r.step(buf, &r.Packet)
		if consumed == 0 {
			return
		}
		rx.Consume(consumed)
		if shouldDispatch {
			if r.clearAfter {
				r.ProcessPacket()
			} else {
				r.ProcessPacketNoClear()
			}
		}
	}
}
