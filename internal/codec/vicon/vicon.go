// Package vicon implements the Vicon protocol's three frame sizes
// (status, command, extended), grounded directly on
// original_source/vicon.c.
package vicon

import "github.com/boxofrox/ptzmixer/internal/ccpacket"

const (
	Flag = 0x80

	SizeStatus   = 2
	SizeCommand  = 6
	SizeExtended = 10

	MaxAddress     = 255
	menuOpenPreset = 94
)

// bit positions, numbered as in original_source/bitarray.h.
const (
	bitCommand    = 12
	bitAckAlarm   = 13
	bitExtended   = 14
	bitAutoIris   = 17
	bitAutoPan    = 18
	bitTiltDown   = 19
	bitTiltUp     = 20
	bitPanRight   = 21
	bitPanLeft    = 22
	bitLensSpeed  = 24
	bitIrisClose  = 25
	bitIrisOpen   = 26
	bitFocusNear  = 27
	bitFocusFar   = 28
	bitZoomIn     = 29
	bitZoomOut    = 30
	bitAux6       = 33
	bitRecall     = 45
	bitStore      = 46
	bitExStore    = 48
	bitExStatus   = 49
	bitExRequest  = 52
)

func bitSet(mess []byte, bit int) { mess[bit/8] |= 1 << (uint(bit) % 8) }
func bitIsSet(mess []byte, bit int) bool { return mess[bit/8]&(1<<(uint(bit)%8)) != 0 }

// Frame holds bytes for the largest (extended) frame size; Len reports
// how many of them are actually in use.
type Frame struct {
	Bytes [SizeExtended]byte
	Len   int
}

func (f Frame) slice() []byte { return f.Bytes[:f.Len] }

func decodeReceiver(mess []byte, p *ccpacket.Packet) {
	p.Receiver = int(mess[0]&0x0f)<<4 | int(mess[1]&0x0f)
}

func decodePan(mess []byte, p *ccpacket.Packet) {
	switch {
	case bitIsSet(mess, bitPanRight):
		p.SetPan(ccpacket.PanRight, ccpacket.SpeedMax)
	case bitIsSet(mess, bitPanLeft):
		p.SetPan(ccpacket.PanLeft, ccpacket.SpeedMax)
	default:
		p.SetPan(ccpacket.PanLeft, 0)
	}
}

func decodeTilt(mess []byte, p *ccpacket.Packet) {
	switch {
	case bitIsSet(mess, bitTiltUp):
		p.SetTilt(ccpacket.TiltUp, ccpacket.SpeedMax)
	case bitIsSet(mess, bitTiltDown):
		p.SetTilt(ccpacket.TiltDown, ccpacket.SpeedMax)
	default:
		p.SetTilt(ccpacket.TiltDown, 0)
	}
}

func decodeLens(mess []byte, p *ccpacket.Packet) {
	switch {
	case bitIsSet(mess, bitIrisOpen):
		p.Iris = ccpacket.IrisOpen
	case bitIsSet(mess, bitIrisClose):
		p.Iris = ccpacket.IrisClose
	}
	switch {
	case bitIsSet(mess, bitFocusNear):
		p.Focus = ccpacket.FocusNear
	case bitIsSet(mess, bitFocusFar):
		p.Focus = ccpacket.FocusFar
	}
	switch {
	case bitIsSet(mess, bitZoomIn):
		p.Zoom = ccpacket.ZoomIn
	case bitIsSet(mess, bitZoomOut):
		p.Zoom = ccpacket.ZoomOut
	}
}

func decodeToggles(mess []byte, p *ccpacket.Packet) {
	if bitIsSet(mess, bitAckAlarm) {
		p.Ack = ccpacket.AckAlarm
	}
	if bitIsSet(mess, bitAutoIris) {
		p.Iris = ccpacket.IrisAuto
	}
	if bitIsSet(mess, bitAutoPan) {
		p.SetPan(ccpacket.PanAuto, 0)
	}
	if bitIsSet(mess, bitLensSpeed) {
		p.Lens = true
	}
}

func decodeAux(mess []byte, p *ccpacket.Packet) {
	if bitIsSet(mess, bitAux6) {
		p.Wiper = ccpacket.WiperOn
	}
}

func decodePreset(mess []byte, p *ccpacket.Packet) {
	num := int(mess[5] & 0x0f)
	switch {
	case bitIsSet(mess, bitRecall):
		p.SetPreset(ccpacket.PresetRecall, num)
	case bitIsSet(mess, bitStore):
		p.SetPreset(ccpacket.PresetStore, num)
	}
}

func decodeExSpeed(mess []byte, p *ccpacket.Packet) {
	pan := int(mess[6]&0x0f)<<7 | int(mess[7]&0x7f)
	tilt := int(mess[8]&0x0f)<<7 | int(mess[9]&0x7f)
	p.PanSpeed = pan
	p.TiltSpeed = tilt
}

func decodeExPreset(mess []byte, p *ccpacket.Packet) {
	num := int(mess[7] & 0x7f)
	pan := int(mess[8] & 0x7f)
	tilt := int(mess[9] & 0x7f)
	if bitIsSet(mess, bitExStore) {
		p.SetPreset(ccpacket.PresetStore, num)
	} else {
		p.SetPreset(ccpacket.PresetRecall, num)
	}
	p.PanSpeed = pan
	p.TiltSpeed = tilt
}

func isCommand(mess []byte) bool { return bitIsSet(mess, bitCommand) }
func isExtendedCommand(mess []byte) bool {
	return bitIsSet(mess, bitCommand) && bitIsSet(mess, bitExtended)
}

// Decode consumes exactly one Vicon frame (status, command, or extended)
// from buf. ok is false when buf doesn't yet hold a complete frame, or
// when the leading byte lacks FLAG (garbage: consumed=1).
func Decode(buf []byte) (f Frame, consumed int, ok bool) {
	if len(buf) < SizeStatus {
		return f, 0, false
	}
	if buf[0]&Flag == 0 {
		return f, 1, false
	}
	switch {
	case isExtendedCommand(buf):
		if len(buf) < SizeExtended {
			return f, 0, false
		}
		copy(f.Bytes[:], buf[:SizeExtended])
		f.Len = SizeExtended
	case isCommand(buf):
		if len(buf) < SizeCommand {
			return f, 0, false
		}
		copy(f.Bytes[:], buf[:SizeCommand])
		f.Len = SizeCommand
	default:
		copy(f.Bytes[:], buf[:SizeStatus])
		f.Len = SizeStatus
	}
	return f, f.Len, true
}

// Apply decodes f into p. Status frames carry no PTZ intent and leave p
// untouched.
func Apply(f Frame, p *ccpacket.Packet) {
	mess := f.slice()
	if f.Len == SizeStatus {
		return
	}
	decodeReceiver(mess, p)
	decodePan(mess, p)
	decodeTilt(mess, p)
	decodeLens(mess, p)
	decodeToggles(mess, p)
	decodeAux(mess, p)
	decodePreset(mess, p)
	if f.Len == SizeExtended {
		if bitIsSet(mess, bitExRequest) {
			if !bitIsSet(mess, bitExStatus) {
				decodeExPreset(mess, p)
			}
		} else {
			decodeExSpeed(mess, p)
		}
	}
}

func encodeReceiver(mess []byte, receiver int) {
	mess[0] = Flag | byte((receiver>>4)&0x0f)
	mess[1] = byte(receiver & 0x0f)
}

func encodePanTilt(mess []byte, p *ccpacket.Packet) {
	if p.HasPan() {
		switch p.Pan {
		case ccpacket.PanLeft:
			bitSet(mess, bitPanLeft)
		case ccpacket.PanRight:
			bitSet(mess, bitPanRight)
		}
	}
	if p.HasTilt() {
		switch p.Tilt {
		case ccpacket.TiltUp:
			bitSet(mess, bitTiltUp)
		case ccpacket.TiltDown:
			bitSet(mess, bitTiltDown)
		}
	}
}

func encodeLens(mess []byte, p *ccpacket.Packet) {
	switch p.Iris {
	case ccpacket.IrisOpen:
		bitSet(mess, bitIrisOpen)
	case ccpacket.IrisClose:
		bitSet(mess, bitIrisClose)
	}
	switch p.Focus {
	case ccpacket.FocusNear:
		bitSet(mess, bitFocusNear)
	case ccpacket.FocusFar:
		bitSet(mess, bitFocusFar)
	}
	switch p.Zoom {
	case ccpacket.ZoomIn:
		bitSet(mess, bitZoomIn)
	case ccpacket.ZoomOut:
		bitSet(mess, bitZoomOut)
	}
}

func encodeToggles(mess []byte, p *ccpacket.Packet) {
	if p.Ack == ccpacket.AckAlarm {
		bitSet(mess, bitAckAlarm)
	}
	if p.Iris == ccpacket.IrisAuto {
		bitSet(mess, bitAutoIris)
	}
	if p.Pan == ccpacket.PanAuto {
		bitSet(mess, bitAutoPan)
	}
	if p.Lens {
		bitSet(mess, bitLensSpeed)
	}
}

func encodeAux(mess []byte, p *ccpacket.Packet) {
	if p.Wiper == ccpacket.WiperOn {
		bitSet(mess, bitAux6)
	}
}

func encodePreset(mess []byte, p *ccpacket.Packet) {
	switch p.Preset {
	case ccpacket.PresetRecall:
		bitSet(mess, bitRecall)
	case ccpacket.PresetStore:
		bitSet(mess, bitStore)
	}
	mess[5] |= byte(p.PresetNumber) & 0x0f
}

func encodeCommand(p *ccpacket.Packet) Frame {
	var f Frame
	f.Len = SizeCommand
	mess := f.Bytes[:SizeCommand]
	encodeReceiver(mess, p.Receiver)
	bitSet(mess, bitCommand)
	encodePanTilt(mess, p)
	encodeLens(mess, p)
	encodeToggles(mess, p)
	encodeAux(mess, p)
	encodePreset(mess, p)
	return f
}

func viconEncodeSpeed(speed int) int { return speed & 0x7ff }

func encodeSpeeds(mess []byte, p *ccpacket.Packet) {
	pan := viconEncodeSpeed(p.PanSpeed)
	tilt := viconEncodeSpeed(p.TiltSpeed)
	mess[6] = byte((pan >> 7) & 0x0f)
	mess[7] = byte(pan & 0x7f)
	mess[8] = byte((tilt >> 7) & 0x0f)
	mess[9] = byte(tilt & 0x7f)
}

func encodeExtendedSpeed(p *ccpacket.Packet) Frame {
	var f Frame
	f.Len = SizeExtended
	mess := f.Bytes[:SizeExtended]
	encodeReceiver(mess, p.Receiver)
	bitSet(mess, bitCommand)
	bitSet(mess, bitExtended)
	encodePanTilt(mess, p)
	encodeLens(mess, p)
	encodeToggles(mess, p)
	encodeAux(mess, p)
	encodePreset(mess, p)
	encodeSpeeds(mess, p)
	return f
}

func encodeExtendedPreset(p *ccpacket.Packet) Frame {
	var f Frame
	f.Len = SizeExtended
	mess := f.Bytes[:SizeExtended]
	encodeReceiver(mess, p.Receiver)
	bitSet(mess, bitCommand)
	bitSet(mess, bitExtended)
	bitSet(mess, bitExRequest)
	if p.Preset == ccpacket.PresetStore {
		bitSet(mess, bitExStore)
	}
	encodeLens(mess, p)
	encodeToggles(mess, p)
	encodeAux(mess, p)
	mess[7] |= byte(p.PresetNumber) & 0x7f
	mess[8] |= byte(p.PanSpeed) & 0x7f
	mess[9] |= byte(p.TiltSpeed) & 0x7f
	return f
}

func isExtendedPreset(p *ccpacket.Packet) bool {
	if p.Preset != ccpacket.PresetRecall && p.Preset != ccpacket.PresetStore {
		return false
	}
	return p.PresetNumber > 15 || p.PanSpeed != 0 || p.TiltSpeed != 0
}

// isExtendedSpeed reports whether the packet needs the 10-byte frame to
// carry pan/tilt speed or the wiper aux, per original's comment that
// some receivers ignore aux functions outside an extended packet.
func isExtendedSpeed(p *ccpacket.Packet) bool {
	return p.HasPan() || p.HasTilt() || p.Wiper == ccpacket.WiperOn
}

// adjustMenuCommands rewrites the neutral menu group into Vicon's own
// escapes: MENU_OPEN -> STORE preset 94, MENU_ENTER -> pan AUTO,
// MENU_CANCEL -> iris AUTO.
func adjustMenuCommands(p ccpacket.Packet) ccpacket.Packet {
	switch p.Menu {
	case ccpacket.MenuOpen:
		p.SetPreset(ccpacket.PresetStore, menuOpenPreset)
	case ccpacket.MenuEnter:
		p.SetPan(ccpacket.PanAuto, 0)
	case ccpacket.MenuCancel:
		p.Iris = ccpacket.IrisAuto
	}
	return p
}

// Encode produces exactly one Vicon frame for pkt: an extended preset
// frame if the preset number or pan/tilt speed require it, else an
// extended speed frame if pan/tilt/wiper need carrying, else a plain
// 6-byte command frame. It returns ok=false for an out-of-range
// receiver.
func Encode(pkt *ccpacket.Packet) (f Frame, ok bool) {
	if pkt.Receiver < 1 || pkt.Receiver > MaxAddress {
		return f, false
	}
	p := adjustMenuCommands(*pkt)
	switch {
	case isExtendedPreset(&p):
		return encodeExtendedPreset(&p), true
	case isExtendedSpeed(&p):
		return encodeExtendedSpeed(&p), true
	default:
		return encodeCommand(&p), true
	}
}
