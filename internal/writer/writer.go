// Package writer implements the per-channel camera-control encode
// driver and its gap/defer policy (spec §4.4), grounded directly on
// original_source/ccwriter.c and defer.c: a Writer holds one deferred
// slot per receiver address, refusing to re-send to the same receiver
// faster than its protocol's gaptime, and re-arming a deferred re-send
// whenever a held command would otherwise expire or a stop command
// needs a guaranteed final retransmit.
package writer

import (
	"fmt"
	"strings"
	"time"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
	"github.com/boxofrox/ptzmixer/internal/codec/axis"
	"github.com/boxofrox/ptzmixer/internal/codec/infinovad"
	"github.com/boxofrox/ptzmixer/internal/codec/manchester"
	"github.com/boxofrox/ptzmixer/internal/codec/pelcod"
	"github.com/boxofrox/ptzmixer/internal/codec/pelcop"
	"github.com/boxofrox/ptzmixer/internal/codec/vicon"
	"github.com/boxofrox/ptzmixer/internal/deferred"
	"github.com/boxofrox/ptzmixer/internal/ptzlog"
	"github.com/boxofrox/ptzmixer/internal/stats"
)

// Target is the minimal surface a Writer needs from its channel: append
// encoded bytes to the outbound buffer, and report/track connection and
// response state.
type Target interface {
	Append(data []byte) error
	Open() bool
	MarkRespPending()
	SetRespRequired()
	PendingOut() int
	DropPending()
}

type encodeFunc func(w *Writer, pkt *ccpacket.Packet) []byte

// Writer drives one channel's outbound encode+defer pipeline.
type Writer struct {
	Name  string
	Log   ptzlog.Sink
	Stats *stats.Counters
	Defer *deferred.Queue

	target Target
	encode encodeFunc
	auth   string

	gaptime time.Duration
	timeout time.Duration
	nRcv    int

	lastSent   []time.Time
	deferCount []int
}

// New builds a Writer for protocol, wiring its encoder and per-protocol
// gaptime/timeout/receiver-count table per ccwriter_set_protocol.
func New(name, protocol, auth string, target Target, dq *deferred.Queue, log ptzlog.Sink) (*Writer, error) {
	if log == nil {
		log = ptzlog.Discard
	}
	w := &Writer{
		Name:   name,
		Log:    log,
		Stats:  &stats.Counters{},
		Defer:  dq,
		target: target,
		auth:   auth,
	}
	var nRcv int
	switch strings.ToLower(protocol) {
	case "manchester":
		w.encode = manchesterEncode
		w.gaptime = 0
		w.timeout = 80 * time.Millisecond
		nRcv = manchester.MaxAddress
	case "infinova_d":
		w.encode = infinovaDEncode
		w.gaptime = 80 * time.Millisecond
		w.timeout = 15000 * time.Millisecond
		nRcv = pelcod.MaxAddress
	case "pelco_d":
		w.encode = pelcoDEncode
		w.gaptime = 80 * time.Millisecond
		w.timeout = 15000 * time.Millisecond
		nRcv = pelcod.MaxAddress
	case "pelco_p":
		w.encode = pelcoPEncode
		w.gaptime = 80 * time.Millisecond
		w.timeout = 15000 * time.Millisecond
		nRcv = pelcop.MaxAddress
	case "vicon":
		w.encode = viconEncode
		w.gaptime = 80 * time.Millisecond
		w.timeout = 15000 * time.Millisecond
		nRcv = vicon.MaxAddress
	case "axis":
		w.encode = axisEncode
		w.gaptime = 250 * time.Millisecond
		w.timeout = 30000 * time.Millisecond
		nRcv = 1
		target.SetRespRequired()
	default:
		return nil, fmt.Errorf("writer: unknown protocol %q", protocol)
	}
	w.nRcv = nRcv
	// lastSent starts at the zero Time (not time.Now()), so the first
	// write to a freshly created slot is never held back by gaptime -
	// only a slot that has actually sent before can be "too soon".
	w.lastSent = make([]time.Time, nRcv)
	w.deferCount = make([]int, nRcv)
	return w, nil
}

func manchesterEncode(w *Writer, pkt *ccpacket.Packet) []byte {
	frames := manchester.Encode(pkt)
	if len(frames) == 0 {
		return nil
	}
	out := make([]byte, 0, len(frames)*3)
	for _, f := range frames {
		out = append(out, f[:]...)
	}
	return out
}

func pelcoDEncode(w *Writer, pkt *ccpacket.Packet) []byte {
	frames := pelcod.Encode(pkt)
	if len(frames) == 0 {
		return nil
	}
	out := make([]byte, 0, len(frames)*pelcod.Size)
	for _, f := range frames {
		out = append(out, f[:]...)
	}
	return out
}

func pelcoPEncode(w *Writer, pkt *ccpacket.Packet) []byte {
	frames := pelcop.Encode(pkt)
	if len(frames) == 0 {
		return nil
	}
	out := make([]byte, 0, len(frames)*pelcop.Size)
	for _, f := range frames {
		out = append(out, f[:]...)
	}
	return out
}

func viconEncode(w *Writer, pkt *ccpacket.Packet) []byte {
	f, ok := vicon.Encode(pkt)
	if !ok {
		return nil
	}
	return append([]byte(nil), f.Bytes[:f.Len]...)
}

// axisEncode mirrors axis_prepare_buffer/axis_do_write's "replace, don't
// queue" behavior: a new Axis request always supersedes whatever is
// still sitting unsent in txbuf (the device hasn't responded to it yet),
// so that stale request is dropped and logged rather than appended
// behind.
func axisEncode(w *Writer, pkt *ccpacket.Packet) []byte {
	data := axis.Encode(pkt, w.auth)
	if len(data) == 0 {
		return nil
	}
	if n := w.target.PendingOut(); n > 0 {
		w.Log.Logf("writer %s: dropping packet(s) (%d stale byte(s) buffered)", w.Name, n)
		w.target.DropPending()
	}
	return data
}

func infinovaDEncode(w *Writer, pkt *ccpacket.Packet) []byte {
	return infinovad.EncodePTZ(pkt, w.target.Open())
}

// DoWrite implements dispatch.Writer: it rejects a receiver outside
// 1..nRcv (ccwriter_do_write's range check) and otherwise runs the
// gaptime/defer pipeline for that receiver's slot.
func (w *Writer) DoWrite(pkt *ccpacket.Packet) int {
	r := pkt.Receiver
	if r < 1 || r > w.nRcv {
		return 0
	}
	return w.doWriteSlot(pkt, r-1)
}

func (w *Writer) slotKey(idx int) any {
	return writerSlot{w: w, idx: idx}
}

type writerSlot struct {
	w   *Writer
	idx int
}

func (w *Writer) tooSoon(idx int) bool {
	return time.Since(w.lastSent[idx]) < w.gaptime
}

// doWriteSlot mirrors ccwriter_do_write_: defer instead of sending if
// it's too soon since the last send to this receiver, otherwise encode
// and send, count stats, and decide whether this send needs a follow-up
// deferred retransmit.
func (w *Writer) doWriteSlot(pkt *ccpacket.Packet, idx int) int {
	if w.tooSoon(idx) {
		w.deferAt(pkt, idx, w.gaptime)
		return 0
	}
	data := w.encode(w, pkt)
	if len(data) == 0 {
		return 0
	}
	if err := w.target.Append(data); err != nil {
		w.Log.Logf("writer %s: append failed: %v", w.Name, err)
		return 0
	}
	w.target.MarkRespPending()
	w.Stats.Count(pkt, stats.DomOut)
	w.checkDeferred(pkt, idx)
	w.Log.Logf("OUT %s: %+v", w.Name, *pkt)
	return 1
}

// checkDeferred mirrors ccwriter_check_deferred: a stop command gets
// exactly one guaranteed extra send after gaptime (to make sure motion
// really halts even if this send is lost), and a command whose
// reader-side hold still has more than the writer's timeout left
// (IsExpired) is re-sent after that timeout to keep it alive; otherwise any
// pending deferred entry for this receiver is dropped.
func (w *Writer) checkDeferred(pkt *ccpacket.Packet, idx int) {
	w.lastSent[idx] = time.Now()
	if pkt.IsStop() {
		if w.deferCount[idx] < 1 {
			w.deferAt(pkt, idx, w.gaptime)
			w.deferCount[idx]++
			return
		}
		w.deferCount[idx] = 0
	} else if pkt.IsExpired(w.timeout) {
		w.deferAt(pkt, idx, w.timeout)
		return
	}
	w.Defer.Remove(w.slotKey(idx))
}

func (w *Writer) deferAt(pkt *ccpacket.Packet, idx int, d time.Duration) {
	w.Defer.Upsert(w.slotKey(idx), &deferred.Entry{
		Writer: w,
		Packet: pkt.Clone(),
		FireAt: time.Now().Add(d),
	})
}

// Resend implements deferred.WriterTarget, re-running the full DoWrite
// pipeline for a packet whose deferred timer fired, matching
// defer_packet_now's call back into ccwriter_do_write.
func (w *Writer) Resend(p ccpacket.Packet) {
	w.DoWrite(&p)
}
