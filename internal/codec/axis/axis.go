// Package axis implements the Axis HTTP/CGI PTZ request encoder
// (encode-only; there is no Axis decoder side), grounded directly on
// original_source/axis.c.
package axis

import (
	"fmt"
	"strings"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
)

const (
	maxSpeed     = 100
	defaultSpeed = "100"

	header       = "GET /axis-cgi/com/ptz.cgi?"
	headerConfig = "GET /axis-cgi/com/ptzconfig.cgi?"
	trailer      = " HTTP/1.0"
	authHeader   = "\r\nAuthorization: Basic "
	ending       = "\r\n\r\n"
)

// encodeSpeed maps a neutral 0..SpeedMax speed onto Axis's 1..100 scale.
func encodeSpeed(speed int) int {
	return (speed*maxSpeed)/(ccpacket.SpeedMax+1) + 1
}

func encodePanTilt(b *strings.Builder, p *ccpacket.Packet) bool {
	if !p.HasPan() && !p.HasTilt() {
		return false
	}
	b.WriteString("continuouspantiltmove=")
	if p.HasPan() {
		speed := encodeSpeed(p.PanSpeed)
		if p.Pan == ccpacket.PanLeft {
			speed = -speed
		}
		fmt.Fprintf(b, "%d,", speed)
	} else {
		b.WriteString("0,")
	}
	if p.TiltSpeed != 0 {
		speed := encodeSpeed(p.TiltSpeed)
		if p.Tilt == ccpacket.TiltDown {
			speed = -speed
		}
		fmt.Fprintf(b, "%d", speed)
	} else {
		b.WriteString("0")
	}
	return true
}

func encodeStop(b *strings.Builder) {
	b.WriteString("continuouspantiltmove=0,0")
}

func encodeFocus(b *strings.Builder, p *ccpacket.Packet) {
	b.WriteString("continuousfocusmove=")
	switch p.Focus {
	case ccpacket.FocusNear:
		b.WriteString(defaultSpeed)
	case ccpacket.FocusFar:
		b.WriteString("-" + defaultSpeed)
	default:
		b.WriteString("0")
	}
}

func encodeZoom(b *strings.Builder, p *ccpacket.Packet) {
	b.WriteString("continuouszoommove=")
	switch p.Zoom {
	case ccpacket.ZoomIn:
		b.WriteString(defaultSpeed)
	case ccpacket.ZoomOut:
		b.WriteString("-" + defaultSpeed)
	default:
		b.WriteString("0")
	}
}

// field appends body to b, preceded by "&" unless it is the first field
// (the header already ends in "?"), mirroring axis_prepare_buffer's
// somein bookkeeping.
func field(b *strings.Builder, somein bool, body string) bool {
	if somein {
		b.WriteString("&")
	}
	b.WriteString(body)
	return true
}

func encodeCommand(b *strings.Builder, p *ccpacket.Packet, somein bool) bool {
	var pt strings.Builder
	if encodePanTilt(&pt, p) {
		somein = field(b, somein, pt.String())
	}
	var focus strings.Builder
	encodeFocus(&focus, p)
	somein = field(b, somein, focus.String())
	var zoom strings.Builder
	encodeZoom(&zoom, p)
	somein = field(b, somein, zoom.String())
	return somein
}

func encodePreset(b *strings.Builder, p *ccpacket.Packet, somein bool) bool {
	var mess strings.Builder
	switch p.Preset {
	case ccpacket.PresetRecall:
		mess.WriteString("goto")
	case ccpacket.PresetStore:
		mess.WriteString("set")
	case ccpacket.PresetClear:
		mess.WriteString("remove")
	}
	mess.WriteString("serverpresetname=")
	fmt.Fprintf(&mess, "Pos%d", p.PresetNumber)
	return field(b, somein, mess.String())
}

// Encode builds the Axis HTTP GET request line(s) for pkt: a preset
// request when a preset mode is set, else a pan/tilt/zoom/focus command
// when any axis carries motion, else an explicit pan/tilt stop. auth,
// when non-empty, is inserted as a base64 Basic-auth credential (the
// caller is responsible for the base64 encoding, matching the original
// which stores a pre-encoded string on the writer). Returns nil if the
// packet produces no request at all, matching axis_do_write's return 0.
func Encode(pkt *ccpacket.Packet, auth string) []byte {
	var b strings.Builder
	switch pkt.Preset {
	case ccpacket.PresetStore, ccpacket.PresetClear:
		b.WriteString(headerConfig)
	default:
		b.WriteString(header)
	}

	somein := false
	switch {
	case pkt.Preset != ccpacket.PresetNone:
		somein = encodePreset(&b, pkt, somein)
	case pkt.HasCommand():
		somein = encodeCommand(&b, pkt, somein)
	default:
		var stop strings.Builder
		encodeStop(&stop)
		somein = field(&b, somein, stop.String())
	}
	if !somein {
		return nil
	}

	b.WriteString(trailer)
	if auth != "" {
		b.WriteString(authHeader)
		b.WriteString(auth)
	}
	b.WriteString(ending)
	return []byte(b.String())
}
