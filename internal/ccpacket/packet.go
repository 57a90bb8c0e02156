// Package ccpacket defines the neutral camera-control packet: a
// transport-independent representation of one PTZ command intent.
//
// The wire codecs each speak a bitmask-over-the-wire protocol, but the
// spec's own design notes call out that a typed language should prefer
// tagged variants per mode group over porting that bit layout, so that
// "at most one bit set per group" becomes unrepresentable instead of
// merely checked. Each group below is its own small enum type.
package ccpacket

import "time"

// SpeedMax is the ceiling for both pan and tilt speed values.
const SpeedMax = 2047

// PanMode is the pan group: at most one of these is ever active.
type PanMode uint8

const (
	PanNone PanMode = iota
	PanLeft
	PanRight
	PanAuto
	PanManual
)

// TiltMode is the tilt group.
type TiltMode uint8

const (
	TiltNone TiltMode = iota
	TiltUp
	TiltDown
)

// PresetMode is the preset group.
type PresetMode uint8

const (
	PresetNone PresetMode = iota
	PresetRecall
	PresetStore
	PresetClear
)

// MenuMode is the menu group.
type MenuMode uint8

const (
	MenuNone MenuMode = iota
	MenuOpen
	MenuEnter
	MenuCancel
)

// CameraMode is the camera power group.
type CameraMode uint8

const (
	CameraNone CameraMode = iota
	CameraOn
	CameraOff
)

// ZoomMode is the zoom group.
type ZoomMode uint8

const (
	ZoomNone ZoomMode = iota
	ZoomIn
	ZoomOut
)

// FocusMode is the focus group.
type FocusMode uint8

const (
	FocusNone FocusMode = iota
	FocusNear
	FocusFar
	FocusAuto
)

// IrisMode is the iris group.
type IrisMode uint8

const (
	IrisNone IrisMode = iota
	IrisClose
	IrisOpen
	IrisAuto
)

// WiperMode is the wiper group.
type WiperMode uint8

const (
	WiperNone WiperMode = iota
	WiperOn
	WiperOff
)

// AckMode is the alarm-acknowledge group. It has a single nonzero value,
// modeled as a group for symmetry with the others.
type AckMode uint8

const (
	AckNone AckMode = iota
	AckAlarm
)

// LensSpeedSet reports whether the codec-specific "lens speed" escape bit
// is present. It has no magnitude of its own in the neutral model; Vicon
// is the only codec that reads or writes it (its lens-speed toggle).
type LensSpeedSet bool

// Packet is one neutral PTZ command intent.
type Packet struct {
	Receiver int // 1..=1024

	Pan    PanMode
	Tilt   TiltMode
	Preset PresetMode
	Menu   MenuMode
	Camera CameraMode
	Zoom   ZoomMode
	Focus  FocusMode
	Iris   IrisMode
	Wiper  WiperMode
	Ack    AckMode

	PanSpeed  int
	TiltSpeed int

	PresetNumber int // 0 == none; upper bound is codec-dependent

	// Lens reports whether a codec's "lens speed" escape accompanies this
	// command (Vicon's CC_LENS_SPEED toggle). It carries no magnitude of
	// its own; see LensSpeedSet.
	Lens LensSpeedSet

	Expire time.Time
}

// Clear resets the packet to its all-zero state, as process_packet does
// for a reader configured to clear after each dispatch.
func (p *Packet) Clear() {
	*p = Packet{Receiver: p.Receiver}
}

func clampSpeed(s int) int {
	if s < 0 {
		return 0
	}
	if s > SpeedMax {
		return SpeedMax
	}
	return s
}

// SetPan sets the pan mode and speed together. Speed is always clamped
// into 0..=SpeedMax. An invalid mode value stores PanNone.
func (p *Packet) SetPan(mode PanMode, speed int) {
	switch mode {
	case PanLeft, PanRight, PanAuto, PanManual:
		p.Pan = mode
	default:
		p.Pan = PanNone
	}
	p.PanSpeed = clampSpeed(speed)
}

// SetTilt sets the tilt mode and speed together.
func (p *Packet) SetTilt(mode TiltMode, speed int) {
	switch mode {
	case TiltUp, TiltDown:
		p.Tilt = mode
	default:
		p.Tilt = TiltNone
	}
	p.TiltSpeed = clampSpeed(speed)
}

// HasPan reports whether the pan axis is actively commanded to move:
// true iff mode is LEFT or RIGHT and speed > 0. AUTO/MANUAL never report
// HasPan, matching spec §3.
func (p *Packet) HasPan() bool {
	return (p.Pan == PanLeft || p.Pan == PanRight) && p.PanSpeed > 0
}

// HasTilt is the tilt-axis analogue of HasPan: true iff a direction is
// set and speed is nonzero.
func (p *Packet) HasTilt() bool {
	return (p.Tilt == TiltUp || p.Tilt == TiltDown) && p.TiltSpeed > 0
}

// SetPreset sets the preset mode/number, applying the STORE 77/78/79
// menu-escape rewrite: storing preset 77, 78 or 79 clears the preset and
// sets menu OPEN, ENTER or CANCEL respectively.
func (p *Packet) SetPreset(mode PresetMode, number int) {
	if mode == PresetStore {
		switch number {
		case 77:
			p.Preset = PresetNone
			p.PresetNumber = 0
			p.Menu = MenuOpen
			return
		case 78:
			p.Preset = PresetNone
			p.PresetNumber = 0
			p.Menu = MenuEnter
			return
		case 79:
			p.Preset = PresetNone
			p.PresetNumber = 0
			p.Menu = MenuCancel
			return
		}
	}
	switch mode {
	case PresetRecall, PresetStore, PresetClear:
		p.Preset = mode
	default:
		p.Preset = PresetNone
	}
	p.PresetNumber = number
}

// IsStop reports whether the packet commands no motion and no other
// action at all: both speeds are zero and no group carries a non-motion
// value (pan AUTO/MANUAL, preset, menu, camera, zoom, focus, iris, wiper,
// ack all clear). Pan LEFT/RIGHT and tilt UP/DOWN at speed 0 are
// considered stopped too, since HasPan/HasTilt are already false there.
func (p *Packet) IsStop() bool {
	return p.PanSpeed == 0 && p.TiltSpeed == 0 &&
		p.Pan != PanAuto && p.Pan != PanManual &&
		p.Preset == PresetNone &&
		p.Menu == MenuNone &&
		p.Camera == CameraNone &&
		p.Zoom == ZoomNone &&
		p.Focus == FocusNone &&
		p.Iris == IrisNone &&
		p.Wiper == WiperNone &&
		p.Ack == AckNone
}

// HasCommand reports whether the packet carries a pan/tilt/zoom/focus/iris
// command of any kind.
func (p *Packet) HasCommand() bool {
	return p.Pan != PanNone || p.Tilt != TiltNone ||
		p.Zoom != ZoomNone || p.Focus != FocusNone || p.Iris != IrisNone
}

// Clone returns a value copy suitable for handing to a writer or the
// deferred queue; Packet has no pointer fields so a plain copy suffices.
func (p *Packet) Clone() Packet {
	return *p
}

// SetTimeout marks the packet to expire timeout from now, the way a
// reader holds a command active for its protocol's hold time.
func (p *Packet) SetTimeout(timeout time.Duration) {
	p.Expire = time.Now().Add(timeout)
}

// IsExpired reports whether the time still remaining until Expire is
// greater than timeout, mirroring ccpacket_is_expired; a writer uses it
// to decide whether a held command gets a refresh re-send after its
// timeout.
func (p *Packet) IsExpired(timeout time.Duration) bool {
	return time.Until(p.Expire) > timeout
}
