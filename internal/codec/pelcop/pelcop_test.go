package pelcop

import (
	"testing"

	"github.com/boxofrox/ptzmixer/internal/ccpacket"
)

func TestFrameRoundTrip(t *testing.T) {
	var p ccpacket.Packet
	p.Receiver = 9
	p.SetPan(ccpacket.PanRight, 900)
	p.SetTilt(ccpacket.TiltDown, 400)
	frames := Encode(&p)
	if len(frames) != 1 {
		t.Fatalf("want 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f[0] != STX || f[6] != ETX {
		t.Fatalf("bad framing bytes: % x", f)
	}
	_, consumed, ok, err := DecodeFrame(f[:])
	if !ok || err != nil || consumed != Size {
		t.Fatalf("valid frame rejected: ok=%v err=%v", ok, err)
	}
	var out ccpacket.Packet
	Apply(f, &out)
	if out.Receiver != 9 || out.Pan != ccpacket.PanRight || out.Tilt != ccpacket.TiltDown {
		t.Fatalf("round trip failed: %+v", out)
	}
}

func TestChecksumValidatesOnDecode(t *testing.T) {
	var p ccpacket.Packet
	p.Receiver = 1
	p.SetPan(ccpacket.PanLeft, 100)
	f := Encode(&p)[0]
	corrupt := f
	corrupt[7] ^= 0xff
	_, _, ok, err := DecodeFrame(corrupt[:])
	if ok || err == nil {
		t.Fatal("corrupt checksum accepted")
	}
}

func TestDecodeInvalidSTXResyncs(t *testing.T) {
	buf := []byte{0x01, 0xa0, 0, 0, 0, 0, 0xaf, 0}
	_, consumed, ok, err := DecodeFrame(buf)
	if ok || err == nil || consumed != 1 {
		t.Fatalf("consumed=%d ok=%v err=%v, want 1,false,err", consumed, ok, err)
	}
}

func TestPresetRoundTrip(t *testing.T) {
	var p ccpacket.Packet
	p.Receiver = 1
	p.SetPreset(ccpacket.PresetStore, 2)
	frames := Encode(&p)
	if len(frames) != 1 {
		t.Fatalf("want 1 frame, got %d", len(frames))
	}
	var out ccpacket.Packet
	Apply(frames[0], &out)
	if out.Preset != ccpacket.PresetStore || out.PresetNumber != 2 {
		t.Fatalf("preset round trip failed: %+v", out)
	}
}

func TestDeadzoneClampsSmallSpeeds(t *testing.T) {
	var p ccpacket.Packet
	p.PanSpeed = DeadzoneThreshold - 1
	p.TiltSpeed = DeadzoneThreshold + 1
	ApplyDeadzone(&p)
	if p.PanSpeed != 0 {
		t.Fatalf("small pan speed not zeroed: %d", p.PanSpeed)
	}
	if p.TiltSpeed != DeadzoneThreshold+1 {
		t.Fatalf("tilt speed above threshold should survive: %d", p.TiltSpeed)
	}
}

func TestEncodeRejectsOutOfRangeReceiver(t *testing.T) {
	var p ccpacket.Packet
	p.Receiver = MaxAddress + 1
	p.SetPan(ccpacket.PanLeft, 100)
	if frames := Encode(&p); frames != nil {
		t.Fatalf("want nil for out-of-range receiver, got % x", frames)
	}
}
