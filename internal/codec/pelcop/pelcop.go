// Package pelcop implements the Pelco-P frame codec. Spec §4.7.3
// describes Pelco-P as "structurally similar to Pelco-D... but with a
// different framing sync and a parity-style checksum"; original_source
// carries only pelco_p.h (no pelco_p.c survived the filter), so the bit
// table below is ported directly from original_source/pelco_d.c's own
// layout (which the header comment says Pelco-P shares) and the framing
// bytes (STX 0xA0 / ETX 0xAF / XOR checksum) follow the well-known
// Pelco-P wire format.
package pelcop

import (
	"fmt"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
)

const (
	Size = 8
	STX  = 0xA0
	ETX  = 0xAF

	MaxAddress     = 254
	turboSpeed     = 1 << 6
	menuOpenPreset = 95
)

// Bit positions within cmd1 (byte 2) and cmd2 (byte 3), numbered 16..31
// exactly as in pelco_d's shared bit table.
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

const (
	exNone = iota
	exStore
	exClear
	exRecall
	exAuxSet
	exAuxClear
)

const exAuxWiper = 1

// Frame is a single 8-byte Pelco-P message: STX addr cmd1 cmd2 data1
// data2 ETX checksum.
type Frame [Size]byte

func bitSet(f *Frame, bit int) { f[bit/8] |= 1 << (uint(bit) % 8) }
func bitIsSet(f Frame, bit int) bool { return f[bit/8]&(1<<(uint(bit)%8)) != 0 }

func checksum(f Frame) byte {
	var x byte
	for i := 0; i < 6; i++ {
		x ^= f[i]
	}
	return x
}

// DecodeFrame parses one 8-byte Pelco-P frame out of buf.
func DecodeFrame(buf []byte) (f Frame, consumed int, ok bool, err error) {
	if len(buf) < Size {
		return f, 0, false, nil
	}
	if buf[0] != STX {
		n := discardToNextSTX(buf)
		return f, n, false, fmt.Errorf("pelco-p: invalid STX, discarding %d bytes", n)
	}
	copy(f[:], buf[:Size])
	if f[6] != ETX {
		n := discardToNextSTX(buf)
		return f, n, false, fmt.Errorf("pelco-p: missing ETX, discarding %d bytes", n)
	}
	if checksum(f) != f[7] {
		n := discardToNextSTX(buf)
		return f, n, false, fmt.Errorf("pelco-p: invalid checksum, discarding %d bytes", n)
	}
	return f, Size, true, nil
}

func discardToNextSTX(buf []byte) int {
	n := 1
	for n < len(buf) && buf[n] != STX {
		n++
	}
	return n
}

func decodeSpeed(v byte) int {
	s := int(v) << 5
	if s > ccpacket.SpeedMax {
		return ccpacket.SpeedMax
	}
	return s
}

// Apply decodes f into p, reusing the same bit-field semantics as
// Pelco-D's base command / extended-command split.
func Apply(f Frame, p *ccpacket.Packet) {
	p.Receiver = int(f[1])
	if bitIsSet(f, bitExtended) {
		applyExtended(f, p)
		return
	}
	applyCommand(f, p)
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
	f[0] = STX
	f[1] = byte(receiver)
}

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
	f[4] = byte(encodePanSpeed(p.PanSpeed))
	if p.HasPan() {
		switch p.Pan {
		case ccpacket.PanLeft:
			bitSet(f, bitPanLeft)
		case ccpacket.PanRight:
			bitSet(f, bitPanRight)
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

func finish(f Frame) Frame {
	f[6] = ETX
	f[7] = checksum(f)
	return f
}

func encodeCommand(p *ccpacket.Packet) Frame {
	var f Frame
	encodeReceiver(&f, p.Receiver)
	encodePan(&f, p)
	encodeTilt(&f, p)
	encodeLens(&f, p)
	encodeSense(&f, p)
	return finish(f)
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
	return finish(f)
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
	return finish(f)
}

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

// DeadzoneThreshold is the minimum |speed| a Pelco-P7 reader lets
// through; anything smaller is clamped to 0 before dispatch, per spec
// §4.7.3's "pan/tilt deadzone" reader flag.
const DeadzoneThreshold = 32

// ApplyDeadzone zeroes pan/tilt speed below DeadzoneThreshold. It is
// applied by a Pelco-P7-flagged reader after Apply, not by the codec
// itself, since plain Pelco-P never deadzones.
func ApplyDeadzone(p *ccpacket.Packet) {
	if p.PanSpeed < DeadzoneThreshold {
		p.PanSpeed = 0
	}
	if p.TiltSpeed < DeadzoneThreshold {
		p.TiltSpeed = 0
	}
}

// Encode produces zero or more Pelco-P frames for pkt, mirroring
// pelcod.Encode's command/preset/wiper emission structure.
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
