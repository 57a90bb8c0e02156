// Package joystick decodes Linux joystick input events (spec §4.8),
// grounded directly on original_source/joystick.c.
package joystick

import (
	"encoding/binary"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
)

const EventSize = 8

const (
	TypeButton  = 0x01
	TypeAxis    = 0x02
	TypeInitial = 0x80
)

const (
	AxisPan  = 0
	AxisTilt = 1
	AxisZoom = 2
)

const (
	ButtonFocusNear = 0
	ButtonFocusFar  = 1
	ButtonIrisClose = 2
	ButtonIrisOpen  = 3
	ButtonWiper     = 4
	ButtonCamera    = 5
	ButtonPreset1   = 6
	ButtonPreset2   = 7
	ButtonPreset3   = 8
	ButtonPreset4   = 9
	ButtonPrevious  = 10
	ButtonNext      = 11
)

const speedMaxRaw = 32767

// Event is a decoded 8-byte /dev/input/js record.
type Event struct {
	Value  int16
	Type   byte
	Number byte
}

// Decode parses exactly one 8-byte event from buf.
func Decode(buf []byte) (e Event, consumed int, ok bool) {
	if len(buf) < EventSize {
		return e, 0, false
	}
	e.Value = int16(binary.LittleEndian.Uint16(buf[4:6]))
	e.Type = buf[6]
	e.Number = buf[7]
	return e, EventSize, true
}

func remapSpeed(value int16) int {
	v := int(value)
	if v < 0 {
		v = -v
	}
	return v * ccpacket.SpeedMax / speedMaxRaw
}

// Navigator lets button 10/11 mutate the reader's sticky camera
// selection; it is satisfied by whatever owns the joystick's receiver
// state (the reader, in the full event loop).
type Navigator interface {
	PreviousCamera()
	NextCamera()
}

func decodePanMode(speed int16) ccpacket.PanMode {
	if speed <= 0 {
		return ccpacket.PanLeft
	}
	return ccpacket.PanRight
}

func decodeTiltMode(speed int16) ccpacket.TiltMode {
	if speed < 0 {
		return ccpacket.TiltUp
	}
	return ccpacket.TiltDown
}

func applyAxis(p *ccpacket.Packet, e Event) {
	switch e.Number {
	case AxisPan:
		p.SetPan(decodePanMode(e.Value), remapSpeed(e.Value))
	case AxisTilt:
		p.SetTilt(decodeTiltMode(e.Value), remapSpeed(e.Value))
	case AxisZoom:
		switch {
		case e.Value < 0:
			p.Zoom = ccpacket.ZoomOut
		case e.Value > 0:
			p.Zoom = ccpacket.ZoomIn
		default:
			p.Zoom = ccpacket.ZoomNone
		}
	}
	p.SetPreset(ccpacket.PresetNone, 0)
}

// noMotionSincePressed reports whether the preset field is still
// exactly the RECALL mode set on press: any intervening axis event
// resets the preset field to NONE (see applyAxis), so finding RECALL
// still there at release time means nothing moved in between.
func noMotionSincePressed(p *ccpacket.Packet) bool {
	return p.Preset == ccpacket.PresetRecall
}

func applyPreset(p *ccpacket.Packet, pressed bool, number int) bool {
	switch {
	case pressed:
		p.SetPreset(ccpacket.PresetRecall, number)
		return true
	case noMotionSincePressed(p):
		p.SetPreset(ccpacket.PresetStore, number)
		return true
	default:
		return false
	}
}

// applyButton handles one button event and reports whether the reader
// should dispatch the packet (true) or merely reset the preset field
// and skip dispatch (false), mirroring decode_button's per-case return.
func applyButton(p *ccpacket.Packet, nav Navigator, e Event) bool {
	pressed := e.Value != 0
	switch e.Number {
	case ButtonFocusNear:
		if pressed {
			p.Focus = ccpacket.FocusNear
		} else {
			p.Focus = ccpacket.FocusNone
		}
		return true
	case ButtonFocusFar:
		if pressed {
			p.Focus = ccpacket.FocusFar
		} else {
			p.Focus = ccpacket.FocusNone
		}
		return true
	case ButtonIrisClose:
		if pressed {
			p.Iris = ccpacket.IrisClose
		} else {
			p.Iris = ccpacket.IrisNone
		}
		return true
	case ButtonIrisOpen:
		if pressed {
			p.Iris = ccpacket.IrisOpen
		} else {
			p.Iris = ccpacket.IrisNone
		}
		return true
	case ButtonWiper:
		if pressed {
			p.Wiper = ccpacket.WiperOn
		} else {
			p.Wiper = ccpacket.WiperNone
		}
		return true
	case ButtonCamera:
		if pressed {
			p.Camera = ccpacket.CameraOn
		} else {
			p.Camera = ccpacket.CameraNone
		}
		return true
	case ButtonPreset1:
		if ok := applyPreset(p, pressed, 1); ok || pressed {
			return ok
		}
	case ButtonPreset2:
		if ok := applyPreset(p, pressed, 2); ok || pressed {
			return ok
		}
	case ButtonPreset3:
		if ok := applyPreset(p, pressed, 3); ok || pressed {
			return ok
		}
	case ButtonPreset4:
		if ok := applyPreset(p, pressed, 4); ok || pressed {
			return ok
		}
	case ButtonPrevious:
		if pressed && nav != nil {
			nav.PreviousCamera()
		}
	case ButtonNext:
		if pressed && nav != nil {
			nav.NextCamera()
		}
	}
	p.SetPreset(ccpacket.PresetNone, 0)
	return false
}

// Apply decodes one event into p and reports whether the reader should
// dispatch the resulting packet. Axis events always dispatch; button
// events dispatch only for the cases decode_button itself returns true
// for (focus/iris/wiper/camera toggles, and preset press or a genuine
// store-on-release).
func Apply(p *ccpacket.Packet, nav Navigator, e Event) bool {
	switch {
	case e.Type&TypeAxis != 0:
		applyAxis(p, e)
		return true
	case e.Type&TypeButton != 0 && e.Type&TypeInitial == 0:
		return applyButton(p, nav, e)
	default:
		return false
	}
}
