// Package infinovad wraps Pelco-D frames in Infinova's own message
// framing, grounded directly on original_source/infinova.c: every
// emitted frame (command/preset/wiper) gets its own outer 12-byte
// message header plus an inner 12-byte PTZ sub-header in front of the
// 7-byte Pelco-D body, and a freshly (re)opened channel gets a one-time
// authentication handshake first.
package infinovad

import (
	"github.com/boxofrox/ptzmixer/internal/ccpacket"
	"github.com/boxofrox/ptzmixer/internal/codec/pelcod"
)

const (
	magic = "INF"

	HeaderSize = 12
	MsgIDAuth  = 0x01
	MsgIDPTZ   = 0x13

	// AuthBodySize is the authentication payload infinova_authenticate
	// appends after its header; the original's own comment admits the
	// extra 2 bytes and the user/password body are unexplained ("we
	// don't know why, but we need two extra bytes here" / "FIXME: fill
	// in user name and password here???"), so this stays a zero-filled
	// placeholder of the same size the original reserves.
	AuthBodySize = 64
)

// outerHeader builds the common 12-byte "INF"-prefixed message header:
// magic, message id, and (for the auth message only) two fixed flag
// bytes the original leaves uncommented, then the payload length in the
// last byte.
func outerHeader(msgID byte, nBytes int) [HeaderSize]byte {
	var h [HeaderSize]byte
	h[0], h[1], h[2] = 'I', 'N', 'F'
	h[3] = msgID
	if msgID == MsgIDAuth {
		h[5] = 1
		h[7] = 1
	}
	h[11] = byte(nBytes)
	return h
}

// AuthPreamble returns the authentication message infinova_authenticate
// writes once before PTZ traffic on a channel the camera may have
// dropped after 90 seconds idle.
func AuthPreamble() []byte {
	h := outerHeader(MsgIDAuth, AuthBodySize)
	out := make([]byte, 0, HeaderSize+AuthBodySize+2)
	out = append(out, h[:]...)
	out = append(out, make([]byte, AuthBodySize+2)...)
	return out
}

// ptzSubHeader is the extra 12-byte header infinova_d_header writes
// after the outer message header for every PTZ frame: a fixed leading
// flag byte and the Pelco-D frame size at offset 7.
func ptzSubHeader() [HeaderSize]byte {
	var h [HeaderSize]byte
	h[0] = 1
	h[7] = pelcod.Size
	return h
}

// EncodePTZ wraps every Pelco-D frame pkt produces (command, preset,
// wiper — pelcod.Encode may return more than one) each in its own outer
// message header + PTZ sub-header pair, prepending AuthPreamble when
// channelOpen is false. Returns nil if pkt produces no Pelco-D frames.
func EncodePTZ(pkt *ccpacket.Packet, channelOpen bool) []byte {
	frames := pelcod.Encode(pkt)
	if len(frames) == 0 {
		return nil
	}

	var out []byte
	if !channelOpen {
		out = append(out, AuthPreamble()...)
	}
	outer := outerHeader(MsgIDPTZ, HeaderSize+pelcod.Size)
	inner := ptzSubHeader()
	for _, f := range frames {
		out = append(out, outer[:]...)
		out = append(out, inner[:]...)
		out = append(out, f[:]...)
	}
	return out
}
