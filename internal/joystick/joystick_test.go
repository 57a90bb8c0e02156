package joystick

import (
	"encoding/binary"
	"testing"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
)

func makeEvent(value int16, typ, number byte) []byte {
	buf := make([]byte, EventSize)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(value))
	buf[6] = typ
	buf[7] = number
	return buf
}

type fakeNav struct{ prev, next int }

func (f *fakeNav) PreviousCamera() { f.prev++ }
func (f *fakeNav) NextCamera()     { f.next++ }

func TestDecodeShortBufferNotOK(t *testing.T) {
	if _, _, ok := Decode(make([]byte, 4)); ok {
		t.Fatal("short buffer should not decode")
	}
}

func TestPanAxisRightPositive(t *testing.T) {
	e, _, ok := Decode(makeEvent(16000, TypeAxis, AxisPan))
	if !ok {
		t.Fatal("decode failed")
	}
	var p ccpacket.Packet
	if !Apply(&p, nil, e) {
		t.Fatal("axis event should dispatch")
	}
	if p.Pan != ccpacket.PanRight {
		t.Fatalf("want PanRight, got %v", p.Pan)
	}
	if p.PanSpeed == 0 {
		t.Fatal("speed not remapped")
	}
}

func TestPanAxisZeroIsLeft(t *testing.T) {
	e, _, _ := Decode(makeEvent(0, TypeAxis, AxisPan))
	var p ccpacket.Packet
	Apply(&p, nil, e)
	if p.Pan != ccpacket.PanLeft {
		t.Fatalf("zero speed should decode as PanLeft per original's <=0 check, got %v", p.Pan)
	}
}

func TestFocusButtonPressRelease(t *testing.T) {
	var p ccpacket.Packet
	press, _, _ := Decode(makeEvent(1, TypeButton, ButtonFocusNear))
	if !Apply(&p, nil, press) {
		t.Fatal("button press should dispatch")
	}
	if p.Focus != ccpacket.FocusNear {
		t.Fatalf("want FocusNear, got %v", p.Focus)
	}
	release, _, _ := Decode(makeEvent(0, TypeButton, ButtonFocusNear))
	Apply(&p, nil, release)
	if p.Focus != ccpacket.FocusNone {
		t.Fatalf("release should clear focus, got %v", p.Focus)
	}
}

func TestPresetPressThenReleaseWithoutMotionStores(t *testing.T) {
	var p ccpacket.Packet
	press, _, _ := Decode(makeEvent(1, TypeButton, ButtonPreset1))
	if !Apply(&p, nil, press) {
		t.Fatal("preset press should dispatch")
	}
	if p.Preset != ccpacket.PresetRecall || p.PresetNumber != 1 {
		t.Fatalf("want recall preset 1, got %+v", p)
	}
	release, _, _ := Decode(makeEvent(0, TypeButton, ButtonPreset1))
	if !Apply(&p, nil, release) {
		t.Fatal("release-without-motion should rewrite to STORE and dispatch")
	}
	if p.Preset != ccpacket.PresetStore || p.PresetNumber != 1 {
		t.Fatalf("want store preset 1 on release, got %+v", p)
	}
}

func TestPresetReleaseAfterMotionDoesNotStore(t *testing.T) {
	var p ccpacket.Packet
	press, _, _ := Decode(makeEvent(1, TypeButton, ButtonPreset1))
	Apply(&p, nil, press)

	axis, _, _ := Decode(makeEvent(5000, TypeAxis, AxisPan))
	Apply(&p, nil, axis) // moving the stick clears preset to none

	release, _, _ := Decode(makeEvent(0, TypeButton, ButtonPreset1))
	if dispatch := Apply(&p, nil, release); dispatch {
		t.Fatal("release after motion should not dispatch a store")
	}
	if p.Preset != ccpacket.PresetNone {
		t.Fatalf("preset should be reset to none, got %v", p.Preset)
	}
}

func TestPreviousNextCameraButtons(t *testing.T) {
	var p ccpacket.Packet
	nav := &fakeNav{}
	prev, _, _ := Decode(makeEvent(1, TypeButton, ButtonPrevious))
	if dispatch := Apply(&p, nav, prev); dispatch {
		t.Fatal("camera-nav buttons never dispatch")
	}
	if nav.prev != 1 {
		t.Fatalf("PreviousCamera not invoked: %+v", nav)
	}
	next, _, _ := Decode(makeEvent(1, TypeButton, ButtonNext))
	Apply(&p, nav, next)
	if nav.next != 1 {
		t.Fatalf("NextCamera not invoked: %+v", nav)
	}
}

func TestInitialButtonEventIgnored(t *testing.T) {
	var p ccpacket.Packet
	e, _, _ := Decode(makeEvent(1, TypeButton|TypeInitial, ButtonCamera))
	if dispatch := Apply(&p, nil, e); dispatch {
		t.Fatal("initial button replay should be ignored")
	}
	if p.Camera != ccpacket.CameraNone {
		t.Fatalf("initial event should not mutate packet: %+v", p)
	}
}
