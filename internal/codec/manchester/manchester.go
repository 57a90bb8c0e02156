// Package manchester implements the 3-byte Manchester PTZ frame codec
// (spec §4.7.1), grounded directly on original_source/manchester.c.
package manchester

import "github.com/boxofrox/ptzmixer/internal/ccpacket"

const (
	flagHighBit = 0x80
	ptCommand   = 0x02 // b2 bit: set only for a direct pan/tilt command

	// base pan/tilt command selectors, b1[5:4].
	cmdTiltDown = 0
	cmdTiltUp   = 1
	cmdPanLeft  = 2
	cmdPanRight = 3

	// extended function selectors, b1[5:4].
	extLens   = 0
	extAux    = 1
	extRecall = 2
	extStore  = 3

	// lens (EX_LENS) payload values, b1[3:1].
	xlTiltDown  = 0
	xlIrisOpen  = 1
	xlFocusFar  = 2
	xlZoomIn    = 3
	xlIrisClose = 4
	xlFocusNear = 5
	xlZoomOut   = 6
	xlPanLeft   = 7

	// aux (EX_AUX) payload values, b1[3:1].
	auxFullUp    = 0
	auxFullRight = 1
	auxCameraOff = 2
	auxCameraOn  = 3
	auxWiperOn   = 7

	speedFull = 7 // index of the last (full-speed) speed bucket
)

// MaxAddress is the address-space ceiling for a Manchester writer.
const MaxAddress = 1024

// MaxPreset is the inclusive preset ceiling: presets are 1-based and
// limited to 1..=8.
const MaxPreset = 8

// speedTable maps a 3-bit speed index 0..6 to a pan/tilt speed value;
// index 7 (speedFull) means full speed (SpeedMax).
var speedTable = [7]int{1 << 8, 2 << 8, 3 << 8, 4 << 8, 5 << 8, 6 << 8, 7 << 8}

func decodeSpeed(idx int) int {
	if idx >= speedFull {
		return ccpacket.SpeedMax
	}
	return speedTable[idx]
}

// encodeSpeed rounds a neutral speed up to the next bucket, returning
// speedFull if it exceeds every table entry.
func encodeSpeed(speed int) int {
	for i, v := range speedTable {
		if v >= speed {
			return i
		}
	}
	return speedFull
}

// Frame is a single 3-byte Manchester message.
type Frame [3]byte

// Decode consumes exactly one 3-byte frame from buf and returns it along
// with the number of bytes consumed and whether a full frame was
// available. A leading byte without FLAG set is garbage: consumed=1,
// ok=false, so the caller discards one byte and resyncs.
func Decode(buf []byte) (f Frame, consumed int, ok bool) {
	if len(buf) == 0 {
		return f, 0, false
	}
	if buf[0]&flagHighBit == 0 {
		return f, 1, false
	}
	if len(buf) < 3 {
		return f, 0, false
	}
	copy(f[:], buf[:3])
	return f, 3, true
}

// Receiver extracts the 1-based receiver address from a frame.
func (f Frame) Receiver() int {
	b0, b1, b2 := f[0], f[1], f[2]
	return 1 + (int(b0&0x0f)<<6 | int(b1&0x01)<<5 | int(b2>>2)&0x1f)
}

// Apply decodes f into p, following original_source/manchester.c's
// decode_packet/decode_pan_tilt/decode_extended chain.
func Apply(f Frame, p *ccpacket.Packet) {
	p.Receiver = f.Receiver()
	b1, b2 := f[1], f[2]
	cmd := (b1 >> 4) & 0x03
	extra := (b1 >> 1) & 0x07

	if b2&ptCommand != 0 {
		speed := decodeSpeed(int(extra))
		switch cmd {
		case cmdTiltDown:
			p.SetTilt(ccpacket.TiltDown, speed)
		case cmdTiltUp:
			p.SetTilt(ccpacket.TiltUp, speed)
		case cmdPanLeft:
			p.SetPan(ccpacket.PanLeft, speed)
		case cmdPanRight:
			p.SetPan(ccpacket.PanRight, speed)
		}
		return
	}

	switch cmd {
	case extLens:
		applyLens(p, extra)
	case extAux:
		applyAux(p, extra)
	case extRecall:
		p.SetPreset(ccpacket.PresetRecall, int(extra)+1)
	case extStore:
		p.SetPreset(ccpacket.PresetStore, int(extra)+1)
	}
}

func applyLens(p *ccpacket.Packet, extra byte) {
	switch extra {
	case xlZoomIn:
		p.Zoom = ccpacket.ZoomIn
	case xlZoomOut:
		p.Zoom = ccpacket.ZoomOut
	case xlFocusFar:
		p.Focus = ccpacket.FocusFar
	case xlFocusNear:
		p.Focus = ccpacket.FocusNear
	case xlIrisOpen:
		p.Iris = ccpacket.IrisOpen
	case xlIrisClose:
		p.Iris = ccpacket.IrisClose
	case xlTiltDown:
		p.SetTilt(ccpacket.TiltDown, ccpacket.SpeedMax)
	case xlPanLeft:
		p.SetPan(ccpacket.PanLeft, ccpacket.SpeedMax)
	}
}

func applyAux(p *ccpacket.Packet, extra byte) {
	switch extra {
	case auxFullUp:
		p.SetTilt(ccpacket.TiltUp, ccpacket.SpeedMax)
	case auxFullRight:
		p.SetPan(ccpacket.PanRight, ccpacket.SpeedMax)
	case auxCameraOff:
		p.Camera = ccpacket.CameraOff
	case auxCameraOn:
		p.Camera = ccpacket.CameraOn
	case auxWiperOn:
		p.Wiper = ccpacket.WiperOn
	}
}

func encodeReceiver(f *Frame, receiver int) {
	r := receiver - 1
	f[0] = flagHighBit | byte((r>>6)&0x0f)
	f[1] = byte((r >> 5) & 0x01)
	f[2] = byte((r & 0x1f) << 2)
}

func appendPanTilt(out []Frame, receiver, cmnd, speedIdx int) []Frame {
	var f Frame
	encodeReceiver(&f, receiver)
	f[1] |= byte(cmnd<<4) | byte(speedIdx<<1)
	f[2] |= ptCommand
	return append(out, f)
}

func appendLens(out []Frame, receiver int, fn int) []Frame {
	var f Frame
	encodeReceiver(&f, receiver)
	f[1] |= byte(fn<<1) | byte(extLens<<4)
	return append(out, f)
}

func appendAux(out []Frame, receiver int, aux int) []Frame {
	var f Frame
	encodeReceiver(&f, receiver)
	f[1] |= byte(aux<<1) | byte(extAux<<4)
	return append(out, f)
}

func appendRecall(out []Frame, receiver, preset int) []Frame {
	var f Frame
	encodeReceiver(&f, receiver)
	f[1] |= byte(preset<<1) | byte(extRecall<<4)
	return append(out, f)
}

func appendStore(out []Frame, receiver, preset int) []Frame {
	var f Frame
	encodeReceiver(&f, receiver)
	f[1] |= byte(preset<<1) | byte(extStore<<4)
	return append(out, f)
}

// Encode produces zero or more Manchester frames for p, in the same
// order as manchester_do_write: pan, tilt, zoom, focus, iris, aux
// (camera/wiper), preset. It returns nil if the receiver is out of
// range or nothing in p encodes. Pan and tilt frames are emitted only
// for a nonzero speed; zoom, focus, iris, aux and preset frames are
// emitted regardless of speed.
func Encode(p *ccpacket.Packet) []Frame {
	if p.Receiver < 1 || p.Receiver > MaxAddress {
		return nil
	}
	var out []Frame

	if p.HasPan() {
		speed := encodeSpeed(p.PanSpeed)
		switch p.Pan {
		case ccpacket.PanLeft:
			if speed == speedFull {
				out = appendLens(out, p.Receiver, xlPanLeft)
			} else {
				out = appendPanTilt(out, p.Receiver, cmdPanLeft, speed)
			}
		case ccpacket.PanRight:
			if speed == speedFull {
				out = appendAux(out, p.Receiver, auxFullRight)
			} else {
				out = appendPanTilt(out, p.Receiver, cmdPanRight, speed)
			}
		}
	}

	if p.TiltSpeed != 0 {
		speed := encodeSpeed(p.TiltSpeed)
		switch p.Tilt {
		case ccpacket.TiltDown:
			if speed == speedFull {
				out = appendLens(out, p.Receiver, xlTiltDown)
			} else {
				out = appendPanTilt(out, p.Receiver, cmdTiltDown, speed)
			}
		case ccpacket.TiltUp:
			if speed == speedFull {
				out = appendAux(out, p.Receiver, auxFullUp)
			} else {
				out = appendPanTilt(out, p.Receiver, cmdTiltUp, speed)
			}
		}
	}

	switch p.Zoom {
	case ccpacket.ZoomOut:
		out = appendLens(out, p.Receiver, xlZoomOut)
	case ccpacket.ZoomIn:
		out = appendLens(out, p.Receiver, xlZoomIn)
	}
	switch p.Focus {
	case ccpacket.FocusNear:
		out = appendLens(out, p.Receiver, xlFocusNear)
	case ccpacket.FocusFar:
		out = appendLens(out, p.Receiver, xlFocusFar)
	}
	switch p.Iris {
	case ccpacket.IrisClose:
		out = appendLens(out, p.Receiver, xlIrisClose)
	case ccpacket.IrisOpen:
		out = appendLens(out, p.Receiver, xlIrisOpen)
	}

	switch {
	case p.Camera == ccpacket.CameraOff:
		out = appendAux(out, p.Receiver, auxCameraOff)
	case p.Camera == ccpacket.CameraOn:
		out = appendAux(out, p.Receiver, auxCameraOn)
	case p.Wiper == ccpacket.WiperOn:
		out = appendAux(out, p.Receiver, auxWiperOn)
	}

	if p.PresetNumber >= 1 && p.PresetNumber <= MaxPreset {
		switch p.Preset {
		case ccpacket.PresetRecall:
			out = appendRecall(out, p.Receiver, p.PresetNumber-1)
		case ccpacket.PresetStore:
			out = appendStore(out, p.Receiver, p.PresetNumber-1)
		}
	}

	return out
}
