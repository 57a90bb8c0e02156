// Package pelcod implements the 7-byte Pelco-D frame codec (spec
// §4.7.2), grounded directly on original_source/pelco_d.c.
package pelcod

import (
	"fmt"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
)

const (
	Size         = 7
	Flag         = 0xff
	MaxAddress   = 254
	turboSpeed   = 1 << 6 // 64
	menuOpenPreset = 95
)

// Frame bit positions within the 7-byte message, numbered as in the
// original's bitarray.h: byte = bit/8, shift = bit%8.
const (
	bitFocusNear   = 16
	bitIrisOpen    = 17
	bitIrisClose   = 18
	bitCameraOnOff = 19
	bitAutoPan     = 20
	bitSense       = 23
	bitExtended    = 24
	bitPanRight    = 25
	bitPanLeft     = 26
	bitTiltUp      = 27
	bitTiltDown    = 28
	bitZoomIn      = 29
	bitZoomOut     = 30
	bitFocusFar    = 31
)

// Extended function codes, mess[3] >> 1 & 0x1f.
const (
	exNone = iota
	exStore
	exClear
	exRecall
	exAuxSet
	exAuxClear
)

const exAuxWiper = 1 // aux sub-code for wiper

// Frame is a single 7-byte Pelco-D message.
type Frame [Size]byte

func bitSet(f *Frame, bit int) { f[bit/8] |= 1 << (uint(bit) % 8) }
func bitIsSet(f Frame, bit int) bool { return f[bit/8]&(1<<(uint(bit)%8)) != 0 }

func checksum(f Frame) byte {
	var sum int
	for i := 1; i < 6; i++ {
		sum += int(f[i])
	}
	return byte(sum)
}

// DecodeFrame parses exactly one Pelco-D frame out of buf. It returns
// the frame, the number of bytes to consume, and an error describing
// why framing failed (invalid FLAG or checksum) so the caller can
// discard and resync per spec §4.7.2. consumed is always > 0 when err
// is non-nil (how many garbage bytes to drop); ok is true only on a
// clean, checksum-valid frame.
func DecodeFrame(buf []byte) (f Frame, consumed int, ok bool, err error) {
	if len(buf) < Size {
		return f, 0, false, nil
	}
	if buf[0] != Flag {
		n := discardToNextFlag(buf)
		return f, n, false, fmt.Errorf("pelco-d: invalid FLAG, discarding %d bytes", n)
	}
	copy(f[:], buf[:Size])
	if checksum(f) != f[6] {
		n := discardToNextFlag(buf)
		return f, n, false, fmt.Errorf("pelco-d: invalid checksum, discarding %d bytes", n)
	}
	return f, Size, true, nil
}

func discardToNextFlag(buf []byte) int {
	n := 1
	for n < len(buf) && buf[n] != Flag {
		n++
	}
	return n
}

// Apply decodes f into p.
func Apply(f Frame, p *ccpacket.Packet) {
	p.Receiver = int(f[1])
	if bitIsSet(f, bitExtended) {
		applyExtended(f, p)
		return
	}
	applyCommand(f, p)
}

func decodeSpeed(v byte) int {
	s := int(v) << 5
	if s > ccpacket.SpeedMax {
		return ccpacket.SpeedMax
	}
	return s
}

func applyCommand(f Frame, p *ccpacket.Packet) {
	pan := decodeSpeed(f[4])
	switch {
	case bitIsSet(f, bitPanRight):
		p.SetPan(ccpacket.PanRight, pan)
	case bitIsSet(f, bitPanLeft):
		p.SetPan(ccpacket.PanLeft, pan)
	default:
		p.SetPan(ccpacket.PanLeft, 0)
	}

	tilt := decodeSpeed(f[5])
	switch {
	case bitIsSet(f, bitTiltUp):
		p.SetTilt(ccpacket.TiltUp, tilt)
	case bitIsSet(f, bitTiltDown):
		p.SetTilt(ccpacket.TiltDown, tilt)
	default:
		p.SetTilt(ccpacket.TiltDown, 0)
	}

	switch {
	case bitIsSet(f, bitIrisOpen):
		p.Iris = ccpacket.IrisOpen
	case bitIsSet(f, bitIrisClose):
		p.Iris = ccpacket.IrisClose
	}
	switch {
	case bitIsSet(f, bitFocusNear):
		p.Focus = ccpacket.FocusNear
	case bitIsSet(f, bitFocusFar):
		p.Focus = ccpacket.FocusFar
	}
	switch {
	case bitIsSet(f, bitZoomIn):
		p.Zoom = ccpacket.ZoomIn
	case bitIsSet(f, bitZoomOut):
		p.Zoom = ccpacket.ZoomOut
	}

	if bitIsSet(f, bitSense) {
		if bitIsSet(f, bitCameraOnOff) {
			p.Camera = ccpacket.CameraOn
		}
		if bitIsSet(f, bitAutoPan) {
			p.SetPan(ccpacket.PanAuto, 0)
		}
	} else {
		if bitIsSet(f, bitCameraOnOff) {
			p.Camera = ccpacket.CameraOff
		}
		if bitIsSet(f, bitAutoPan) {
			p.SetPan(ccpacket.PanManual, 0)
		}
	}
}

func applyExtended(f Frame, p *ccpacket.Packet) {
	ex := int(f[3]>>1) & 0x1f
	p0 := int(f[5])
	switch ex {
	case exStore:
		p.SetPreset(ccpacket.PresetStore, p0)
	case exRecall:
		p.SetPreset(ccpacket.PresetRecall, p0)
	case exClear:
		p.SetPreset(ccpacket.PresetClear, p0)
	case exAuxSet:
		if p0 == exAuxWiper {
			p.Wiper = ccpacket.WiperOn
		}
	case exAuxClear:
		if p0 == exAuxWiper {
			p.Wiper = ccpacket.WiperOff
		}
	}
}

func encodeReceiver(f *Frame, receiver int) {
	f[0] = Flag
	f[1] = byte(receiver)
}

// encodeSpeed rounds a neutral speed to Pelco-D's 6-bit scale, capped
// at 63; the TURBO value 64 comes only from encodePanSpeed.
func encodeSpeed(speed int) int {
	s := (speed >> 5) + ((speed % 32) >> 4)
	if s < turboSpeed {
		return s
	}
	return turboSpeed - 1
}

func encodePanSpeed(speed int) int {
	if speed > ccpacket.SpeedMax-8 {
		return turboSpeed
	}
	return encodeSpeed(speed)
}

func encodePan(f *Frame, p *ccpacket.Packet) {
	pan := encodePanSpeed(p.PanSpeed)
	f[4] = byte(pan)
	if p.HasPan() {
		switch p.Pan {
		case ccpacket.PanLeft:
			bitSet(f, bitPanLeft)
		case ccpacket.PanRight:
			bitSet(f, bitPanRight)
		default:
			f[4] = 0
		}
	}
}

func encodeTilt(f *Frame, p *ccpacket.Packet) {
	tilt := encodeSpeed(p.TiltSpeed)
	f[5] = byte(tilt)
	if tilt != 0 {
		switch p.Tilt {
		case ccpacket.TiltUp:
			bitSet(f, bitTiltUp)
		case ccpacket.TiltDown:
			bitSet(f, bitTiltDown)
		default:
			f[5] = 0
		}
	}
}

func encodeLens(f *Frame, p *ccpacket.Packet) {
	switch p.Iris {
	case ccpacket.IrisOpen:
		bitSet(f, bitIrisOpen)
	case ccpacket.IrisClose:
		bitSet(f, bitIrisClose)
	}
	switch p.Focus {
	case ccpacket.FocusNear:
		bitSet(f, bitFocusNear)
	case ccpacket.FocusFar:
		bitSet(f, bitFocusFar)
	}
	switch p.Zoom {
	case ccpacket.ZoomIn:
		bitSet(f, bitZoomIn)
	case ccpacket.ZoomOut:
		bitSet(f, bitZoomOut)
	}
}

func encodeSense(f *Frame, p *ccpacket.Packet) {
	switch {
	case p.Camera == ccpacket.CameraOn || p.Pan == ccpacket.PanAuto:
		bitSet(f, bitSense)
		if p.Camera == ccpacket.CameraOn {
			bitSet(f, bitCameraOnOff)
		}
		if p.Pan == ccpacket.PanAuto {
			bitSet(f, bitAutoPan)
		}
	case p.Camera == ccpacket.CameraOff || p.Pan == ccpacket.PanManual:
		if p.Camera == ccpacket.CameraOff {
			bitSet(f, bitCameraOnOff)
		}
		if p.Pan == ccpacket.PanManual {
			bitSet(f, bitAutoPan)
		}
	}
}

func encodeCommand(p *ccpacket.Packet) Frame {
	var f Frame
	encodeReceiver(&f, p.Receiver)
	encodePan(&f, p)
	encodeTilt(&f, p)
	encodeLens(&f, p)
	encodeSense(&f, p)
	f[6] = checksum(f)
	return f
}

func encodePreset(p *ccpacket.Packet) Frame {
	var f Frame
	encodeReceiver(&f, p.Receiver)
	bitSet(&f, bitExtended)
	switch p.Preset {
	case ccpacket.PresetRecall:
		f[3] |= exRecall << 1
	case ccpacket.PresetStore:
		f[3] |= exStore << 1
	case ccpacket.PresetClear:
		f[3] |= exClear << 1
	}
	f[5] = byte(p.PresetNumber)
	f[6] = checksum(f)
	return f
}

func encodeWiper(p *ccpacket.Packet) Frame {
	var f Frame
	encodeReceiver(&f, p.Receiver)
	bitSet(&f, bitExtended)
	ex := exAuxClear
	if p.Wiper == ccpacket.WiperOn {
		ex = exAuxSet
	}
	f[3] |= byte(ex) << 1
	f[5] = exAuxWiper
	f[6] = checksum(f)
	return f
}

// adjustMenuCommands rewrites the neutral menu group into Pelco-D's own
// preset/iris escapes, per spec §3: MENU_OPEN -> STORE preset 95,
// MENU_ENTER -> IRIS_OPEN, MENU_CANCEL -> IRIS_CLOSE. It mutates a copy,
// not the caller's packet.
func adjustMenuCommands(p ccpacket.Packet) ccpacket.Packet {
	switch p.Menu {
	case ccpacket.MenuOpen:
		p.SetPreset(ccpacket.PresetStore, menuOpenPreset)
	case ccpacket.MenuEnter:
		p.Iris = ccpacket.IrisOpen
	case ccpacket.MenuCancel:
		p.Iris = ccpacket.IrisClose
	}
	return p
}

// Encode produces zero or more Pelco-D frames for p: a command frame if
// it carries a command/autopan/power change, a preset frame if a preset
// mode is set, and a wiper frame if the wiper state changed, mirroring
// pelco_d_do_write. It returns nil if the receiver is out of range.
func Encode(pkt *ccpacket.Packet) []Frame {
	if pkt.Receiver < 1 || pkt.Receiver > MaxAddress {
		return nil
	}
	p := adjustMenuCommands(*pkt)

	var out []Frame
	if p.HasCommand() || p.Pan == ccpacket.PanAuto || p.Pan == ccpacket.PanManual ||
		p.Camera != ccpacket.CameraNone {
		out = append(out, encodeCommand(&p))
	}
	if p.Preset != ccpacket.PresetNone {
		out = append(out, encodePreset(&p))
	}
	if p.Wiper != ccpacket.WiperNone {
		out = append(out, encodeWiper(&p))
	}
	return out
}
