package ccpacket

import "testing"

func TestSetPanClampsSpeed(t *testing.T) {
	cases := []struct {
		name  string
		in    int
		want  int
	}{
		{"negative clamps to zero", -5, 0},
		{"in range unchanged", 1000, 1000},
		{"over max clamps", SpeedMax + 500, SpeedMax},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var p Packet
			p.SetPan(PanLeft, c.in)
			if p.PanSpeed != c.want {
				t.Fatalf("PanSpeed = %d, want %d", p.PanSpeed, c.want)
			}
		})
	}
}

func TestSetPanInvalidModeStoresNone(t *testing.T) {
	var p Packet
	p.SetPan(PanMode(99), 100)
	if p.Pan != PanNone {
		t.Fatalf("Pan = %v, want PanNone", p.Pan)
	}
}

func TestHasPanExcludesAutoManual(t *testing.T) {
	var p Packet
	p.SetPan(PanAuto, 500)
	if p.HasPan() {
		t.Fatal("HasPan true for PanAuto")
	}
	p.SetPan(PanLeft, 0)
	if p.HasPan() {
		t.Fatal("HasPan true for zero speed")
	}
	p.SetPan(PanLeft, 1)
	if !p.HasPan() {
		t.Fatal("HasPan false for PanLeft speed>0")
	}
}

func TestSetPresetMenuEscape(t *testing.T) {
	cases := []struct {
		number   int
		wantMenu MenuMode
	}{
		{77, MenuOpen},
		{78, MenuEnter},
		{79, MenuCancel},
	}
	for _, c := range cases {
		var p Packet
		p.SetPreset(PresetStore, c.number)
		if p.Preset != PresetNone || p.PresetNumber != 0 {
			t.Fatalf("preset not cleared: %+v", p)
		}
		if p.Menu != c.wantMenu {
			t.Fatalf("Menu = %v, want %v", p.Menu, c.wantMenu)
		}
	}
}

func TestSetPresetOrdinary(t *testing.T) {
	var p Packet
	p.SetPreset(PresetRecall, 12)
	if p.Preset != PresetRecall || p.PresetNumber != 12 {
		t.Fatalf("got %+v", p)
	}
}

func TestIsStop(t *testing.T) {
	var p Packet
	if !p.IsStop() {
		t.Fatal("zero packet should be a stop")
	}
	p.SetPan(PanLeft, 1)
	if p.IsStop() {
		t.Fatal("moving packet should not be a stop")
	}
	p.SetPan(PanNone, 0)
	p.Wiper = WiperOn
	if p.IsStop() {
		t.Fatal("wiper-on packet should not be a stop")
	}
}

func TestIsStopAutoPanIsNotStop(t *testing.T) {
	var p Packet
	p.SetPan(PanAuto, 0)
	if p.IsStop() {
		t.Fatal("auto-pan packet should not be a stop even at speed 0")
	}
}

func TestHasCommand(t *testing.T) {
	var p Packet
	if p.HasCommand() {
		t.Fatal("empty packet should have no command")
	}
	p.Zoom = ZoomIn
	if !p.HasCommand() {
		t.Fatal("zoom should count as a command")
	}
}

func TestClearPreservesNothingButReceiver(t *testing.T) {
	p := Packet{Receiver: 42}
	p.SetPan(PanLeft, 500)
	p.Wiper = WiperOn
	p.Clear()
	if p.Receiver != 42 {
		t.Fatalf("receiver not preserved across Clear: %d", p.Receiver)
	}
	if p.Pan != PanNone || p.Wiper != WiperNone {
		t.Fatalf("Clear left state behind: %+v", p)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := Packet{Receiver: 1}
	p.SetPan(PanLeft, 10)
	clone := p.Clone()
	p.SetPan(PanRight, 20)
	if clone.Pan != PanLeft || clone.PanSpeed != 10 {
		t.Fatalf("clone mutated by later changes to original: %+v", clone)
	}
}
