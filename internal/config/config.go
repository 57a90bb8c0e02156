// Package config implements the directive grammar and graph builder
// described by spec §6, grounded directly on original_source/config.c
// and ccreader.c: each non-comment, non-blank line names one dispatch
// edge — an input protocol/port, a receiver range, and an output
// protocol/port/shift/auth — and channels are deduplicated by
// (name, service, transport flags) so several directives that name the
// same physical port share one Channel.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	ptzchan "github.com/boxofrox/ptzmixer/internal/chan"
	"github.com/boxofrox/ptzmixer/internal/deferred"
	"github.com/boxofrox/ptzmixer/internal/ptzlog"
	"github.com/boxofrox/ptzmixer/internal/reader"
	"github.com/boxofrox/ptzmixer/internal/writer"
)

// Directive is one parsed config line: an input protocol/port, the
// receiver range it dispatches, and the output protocol/port/shift/auth
// it dispatches to.
type Directive struct {
	ProtocolIn  string
	PortIn      string
	Range       string
	ProtocolOut string
	PortOut     string
	Shift       string
	AuthOut     string
}

// Scan reads directive lines from r, following config_scan_directive:
// text after '#' is a comment, a blank line is skipped, and a directive
// needs at least 5 whitespace-separated fields (protocol_in port_in
// range protocol_out port_out), with shift defaulting to "0" and auth_out
// to "" when omitted. Fields past the seventh are ignored, matching
// sscanf's fixed seven conversions.
func Scan(r io.Reader) ([]Directive, error) {
	var directives []Directive
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 5 {
			return nil, fmt.Errorf("config: invalid directive at line %d: %q", lineNo, line)
		}
		d := Directive{
			ProtocolIn:  fields[0],
			PortIn:      fields[1],
			Range:       fields[2],
			ProtocolOut: fields[3],
			PortOut:     fields[4],
			Shift:       "0",
		}
		if len(fields) >= 6 {
			d.Shift = fields[5]
		}
		if len(fields) >= 7 {
			d.AuthOut = fields[6]
		}
		directives = append(directives, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return directives, nil
}

// parsePort splits a port field into its transport name, service, and
// transport flags, following parse_name/parse_service/copy_name: an
// optional "udp://"/"tcp://" prefix sets the transport flag, and the
// name/service pair splits on the last colon (so an IPv4 host:port or a
// serial device:baud both work).
func parsePort(raw string) (name, service string, flags ptzchan.Flag) {
	switch {
	case strings.HasPrefix(raw, "udp://"):
		flags |= ptzchan.FlagUDP
		raw = strings.TrimPrefix(raw, "udp://")
	case strings.HasPrefix(raw, "tcp://"):
		flags |= ptzchan.FlagTCP
		raw = strings.TrimPrefix(raw, "tcp://")
	}
	if idx := strings.LastIndexByte(raw, ':'); idx >= 0 {
		return raw[:idx], raw[idx+1:], flags
	}
	return raw, "", flags
}

// parseRange parses a receiver range field, following ccnode_set_range's
// sscanf(range, "%d%d", ...) trick: a field like "1-10" is the digits
// "1" followed by the signed number "-10", so the dash here is not a
// delimiter to strip but the sign of the second integer. Splitting on
// the first '-' found after position 0 reproduces the same first/last
// pair without sscanf's sign games.
func parseRange(s string) (first, last int, hasLast bool, err error) {
	dash := -1
	for i := 1; i < len(s); i++ {
		if s[i] == '-' {
			dash = i
			break
		}
	}
	if dash < 0 {
		first, err = strconv.Atoi(s)
		return first, 0, false, err
	}
	if first, err = strconv.Atoi(s[:dash]); err != nil {
		return 0, 0, false, err
	}
	if last, err = strconv.Atoi(s[dash+1:]); err != nil {
		return 0, 0, false, err
	}
	return first, last, true, nil
}

// parseShift parses the shift field, defaulting to 0 on an empty or
// unparseable value, following ccnode_set_shift's "sscanf failure leaves
// the zero-initialized default" behavior.
func parseShift(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// Graph is the fully built dispatch graph: every channel opened, every
// reader wired to its linked writers, ready to run through an event loop.
type Graph struct {
	Channels []*ptzchan.Channel
	Readers  []*reader.Reader
	Writers  []*writer.Writer
}

// Build constructs channels, readers, and writers for directives,
// deduplicating channels by (name, service, transport) following
// config_get_channel/channel_matches, and sharing one reader per input
// channel following ccreader_add_writer's "chn_in->reader == NULL ?
// create : reuse" check. Log is used for every reader/writer created;
// dq is the deferred-retry queue every writer shares.
func Build(directives []Directive, dq *deferred.Queue, log ptzlog.Sink) (*Graph, error) {
	if log == nil {
		log = ptzlog.Discard
	}
	g := &Graph{}
	channels := map[ptzchan.Key]*ptzchan.Channel{}
	readers := map[ptzchan.Key]*reader.Reader{}

	for _, d := range directives {
		nameIn, serviceIn, flagsIn := parsePort(d.PortIn)
		flagsIn |= ptzchan.FlagListen
		keyIn := ptzchan.KeyFor(nameIn, serviceIn, flagsIn)

		rdr, ok := readers[keyIn]
		if !ok {
			var err error
			rdr, err = reader.New(nameIn, d.ProtocolIn, log)
			if err != nil {
				return nil, fmt.Errorf("config: input %s: %w", d.PortIn, err)
			}
			chnIn, err := ptzchan.Open(nameIn, serviceIn, flagsIn, rdr)
			if err != nil {
				return nil, fmt.Errorf("config: open input %s: %w", d.PortIn, err)
			}
			readers[keyIn] = rdr
			channels[keyIn] = chnIn
			g.Readers = append(g.Readers, rdr)
			g.Channels = append(g.Channels, chnIn)
		}

		nameOut, serviceOut, flagsOut := parsePort(d.PortOut)
		keyOut := ptzchan.KeyFor(nameOut, serviceOut, flagsOut)
		chnOut, ok := channels[keyOut]
		if !ok {
			var err error
			chnOut, err = ptzchan.Open(nameOut, serviceOut, flagsOut, nil)
			if err != nil {
				return nil, fmt.Errorf("config: open output %s: %w", d.PortOut, err)
			}
			channels[keyOut] = chnOut
			g.Channels = append(g.Channels, chnOut)
		}

		wtr, err := writer.New(nameOut, d.ProtocolOut, d.AuthOut, chnOut, dq, log)
		if err != nil {
			return nil, fmt.Errorf("config: output %s: %w", d.PortOut, err)
		}
		g.Writers = append(g.Writers, wtr)

		first, last, hasLast, err := parseRange(d.Range)
		if err != nil {
			return nil, fmt.Errorf("config: range %q: %w", d.Range, err)
		}
		rdr.AddWriter(wtr, first, last, hasLast, parseShift(d.Shift))
	}
	return g, nil
}
