// Package stats tracks per-class packet counters for the --stats flag
// (spec §3 supplemented feature), grounded directly on
// original_source/stats.c.
package stats

import (
	"fmt"
	"sync/atomic"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
	"github.com/boxofrox/ptzmixer/internal/ptzlog"
)

// Domain distinguishes packets read in from packets written out.
type Domain int

const (
	DomIn Domain = iota
	DomOut
)

type class int

const (
	classPan class = iota
	classTilt
	classZoom
	classFocus
	classIris
	classWiper
	classPreset
	classTotal
	classCount
)

var className = [classCount]string{
	classPan:    "pan",
	classTilt:   "tilt",
	classZoom:   "zoom",
	classFocus:  "focus",
	classIris:   "iris",
	classWiper:  "wiper",
	classPreset: "preset",
	classTotal:  "total",
}

// Counters holds atomic in/out counts per packet class. The zero value
// is ready to use.
type Counters struct {
	n [classCount][2]atomic.Uint64
}

// Count classifies pkt and increments the matching counters, exactly as
// ptz_stats_count does. Every call always increments classTotal.
func (c *Counters) Count(pkt *ccpacket.Packet, d Domain) {
	if pkt.HasPan() {
		c.n[classPan][d].Add(1)
	}
	if pkt.HasTilt() {
		c.n[classTilt][d].Add(1)
	}
	if pkt.Zoom != ccpacket.ZoomNone {
		c.n[classZoom][d].Add(1)
	}
	if pkt.Focus != ccpacket.FocusNone {
		c.n[classFocus][d].Add(1)
	}
	if pkt.Iris != ccpacket.IrisNone {
		c.n[classIris][d].Add(1)
	}
	if pkt.Wiper != ccpacket.WiperNone {
		c.n[classWiper][d].Add(1)
	}
	if pkt.Preset != ccpacket.PresetNone {
		c.n[classPreset][d].Add(1)
	}
	c.n[classTotal][d].Add(1)
}

// Display writes a table of non-zero classes to sink, matching
// ptz_stats_display's column layout.
func (c *Counters) Display(sink ptzlog.Sink) {
	sink.Logf("%8s  %10s %8s %10s %8s", "Class", "Count IN", "IN %", "Count OUT", "OUT %")
	totalIn := c.n[classTotal][DomIn].Load()
	totalOut := c.n[classTotal][DomOut].Load()
	for i := class(0); i <= classTotal; i++ {
		nIn := c.n[i][DomIn].Load()
		nOut := c.n[i][DomOut].Load()
		if nIn == 0 && nOut == 0 {
			continue
		}
		var pctIn, pctOut float64
		if totalIn > 0 {
			pctIn = 100 * float64(nIn) / float64(totalIn)
		}
		if totalOut > 0 {
			pctOut = 100 * float64(nOut) / float64(totalOut)
		}
		sink.Logf("%8s: %10d  %6.2f%% %10d  %6.2f%%", className[i], nIn, pctIn, nOut, pctOut)
	}
}

// String renders the same table Display logs, for callers (e.g. a
// SIGUSR1 handler) that want the text instead of a direct log write.
func (c *Counters) String() string {
	var b fmtBuilder
	c.Display(&b)
	return b.String()
}

type fmtBuilder struct{ lines []string }

func (b *fmtBuilder) Logf(format string, args ...any) {
	b.lines = append(b.lines, fmt.Sprintf(format, args...))
}

func (b *fmtBuilder) String() string {
	s := ""
	for _, l := range b.lines {
		s += l + "\n"
	}
	return s
}
