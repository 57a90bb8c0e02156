// Package ptzchan implements Channel: the transport abstraction over a
// serial port, a UDP socket, or a TCP socket (connecting or listening),
// each with half-duplex buffered I/O through an iobuf.Buffer pair.
//
// Serial transport is opened through github.com/daedaluz/goserial, which
// (unlike the teacher's github.com/mikepb/go-serial) exposes both a raw
// fd and termios2 control, needed to register the port directly with
// the epoll-based event loop (internal/eventloop) and to set arbitrary
// baud rates the way spec §4.2 requires. UDP/TCP sockets are opened
// directly through golang.org/x/sys/unix rather than net.Dial/net.Listen
// so the resulting fd can be driven non-blocking by that same loop
// instead of the Go runtime's own netpoller.
package ptzchan

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/daedaluz/goserial"
	"github.com/boxofrox/ptzmixer/internal/iobuf"
)

// Flag is a bitmask of channel state flags.
type Flag uint8

const (
	FlagUDP Flag = 1 << iota
	FlagTCP
	FlagListen
	FlagRespRequired
	FlagNeedsResp
)

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// Kind identifies which transport a Channel speaks.
type Kind int

const (
	KindSerial Kind = iota
	KindUDP
	KindTCP
)

// Reader is invoked once per readiness event that fills Rx with new
// bytes. It is supplied by the owning protocol reader (internal/reader).
type Reader interface {
	OnReadable(rx *iobuf.Buffer)
}

// Channel owns one fd plus bounded rx/tx buffers and a set of state
// flags. If Name starts with "/" it is a serial device; otherwise a
// network endpoint. For a listening TCP channel, ServerFd retains the
// listening socket separately from Fd so that accept -> connection ->
// close leaves the listener in place.
type Channel struct {
	Name    string
	Service string // baud string for serial, host:port for network
	Kind    Kind
	Flags   Flag

	Fd       int
	ServerFd int // only meaningful for a listening TCP channel

	Rx *iobuf.Buffer
	Tx *iobuf.Buffer

	reader Reader
	port   *serial.Port // non-nil only for KindSerial
}

// Key is the dedup identity spec §3 describes: one physical socket may
// be shared by several dispatch nodes that name the same
// (name, service, transport-relevant flags).
type Key struct {
	Name    string
	Service string
	Flags   Flag
}

func transportFlags(f Flag) Flag {
	return f & (FlagUDP | FlagTCP | FlagListen)
}

// KeyFor computes the dedup key for a not-yet-opened channel spec.
func KeyFor(name, service string, flags Flag) Key {
	return Key{Name: name, Service: service, Flags: transportFlags(flags)}
}

// acceptedBauds mirrors the serial baud table spec §4.2 accepts.
var acceptedBauds = map[int]serial.CFlag{
	1200:  serial.B1200,
	2400:  serial.B2400,
	4800:  serial.B4800,
	9600:  serial.B9600,
	19200: serial.B19200,
	38400: serial.B38400,
}

func isLocal(host string) bool {
	return host == "localhost" || host == "0.0.0.0" || host == ""
}

// classify determines transport Kind from name/flags per spec §4.2.
func classify(name string, flags Flag) Kind {
	switch {
	case strings.HasPrefix(name, "/"):
		return KindSerial
	case strings.HasPrefix(name, "udp://") || flags.has(FlagUDP):
		return KindUDP
	default:
		return KindTCP
	}
}

// Open opens the transport named by name/service according to spec §4.2.
// reader may be nil for a channel with no inbound decode driver (a
// pure writer channel).
func Open(name, service string, flags Flag, reader Reader) (*Channel, error) {
	kind := classify(name, flags)
	c := &Channel{
		Name: name, Service: service, Kind: kind, Flags: flags,
		Rx: iobuf.New(), Tx: iobuf.New(),
		reader: reader,
	}
	var err error
	switch kind {
	case KindSerial:
		err = c.openSerial()
	case KindUDP:
		err = c.openUDP()
	case KindTCP:
		err = c.openTCP()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func trimProto(name string) string {
	name = strings.TrimPrefix(name, "udp://")
	name = strings.TrimPrefix(name, "tcp://")
	return name
}

func (c *Channel) openSerial() error {
	baud, err := strconv.Atoi(c.Service)
	if err != nil {
		return fmt.Errorf("ptzchan: invalid baud %q: %w", c.Service, err)
	}
	cflag, ok := acceptedBauds[baud]
	if !ok {
		return fmt.Errorf("ptzchan: unsupported baud %d", baud)
	}

	opts := serial.NewOptions()
	opts.OpenMode = unix.O_RDWR | unix.O_NOCTTY | unix.O_NONBLOCK
	port, err := serial.Open(c.Name, opts)
	if err != nil {
		return fmt.Errorf("ptzchan: open %s: %w", c.Name, err)
	}

	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return fmt.Errorf("ptzchan: get termios %s: %w", c.Name, err)
	}
	attrs.MakeRaw()
	attrs.Cflag |= serial.CLOCAL | serial.CREAD
	attrs.SetSpeed(cflag)
	if err := port.SetAttr2(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return fmt.Errorf("ptzchan: set termios %s: %w", c.Name, err)
	}

	c.port = port
	c.Fd = port.Fd()
	return nil
}

func (c *Channel) openUDP() error {
	hostport := trimProto(c.Name)
	host, portStr, err := splitHostPort(hostport, c.Service)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("ptzchan: invalid udp port %q: %w", portStr, err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return fmt.Errorf("ptzchan: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return err
	}

	addr, err := resolveIPv4(host)
	if err != nil {
		unix.Close(fd)
		return err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: addr}

	if c.Flags.has(FlagListen) {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if err := unix.Bind(fd, sa); err != nil {
			unix.Close(fd)
			return fmt.Errorf("ptzchan: bind %s: %w", hostport, err)
		}
	} else {
		if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
			unix.Close(fd)
			return fmt.Errorf("ptzchan: connect %s: %w", hostport, err)
		}
	}
	c.Fd = fd
	return nil
}

func (c *Channel) openTCP() error {
	hostport := trimProto(c.Name)
	host, portStr, err := splitHostPort(hostport, c.Service)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("ptzchan: invalid tcp port %q: %w", portStr, err)
	}

	listen := c.Flags.has(FlagListen) && isLocal(host)

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return fmt.Errorf("ptzchan: socket: %w", err)
	}
	if err := applyTCPSockopts(fd); err != nil {
		unix.Close(fd)
		return err
	}

	addr, err := resolveIPv4(host)
	if err != nil {
		unix.Close(fd)
		return err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: addr}

	if listen {
		if err := unix.Bind(fd, sa); err != nil {
			unix.Close(fd)
			return fmt.Errorf("ptzchan: bind %s: %w", hostport, err)
		}
		if err := unix.Listen(fd, 16); err != nil {
			unix.Close(fd)
			return fmt.Errorf("ptzchan: listen %s: %w", hostport, err)
		}
		c.ServerFd = fd
		c.Fd = fd
		c.Flags |= FlagListen
	} else {
		if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
			unix.Close(fd)
			return fmt.Errorf("ptzchan: connect %s: %w", hostport, err)
		}
		c.Fd = fd
	}
	return nil
}

// applyTCPSockopts sets SO_KEEPALIVE (4 probes, 30s idle, 10s interval),
// SO_REUSEADDR, TCP_NODELAY, IP_RECVERR and non-blocking mode per
// spec §4.2.
func applyTCPSockopts(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	opts := []struct {
		level, name, val int
	}{
		{unix.SOL_SOCKET, unix.SO_REUSEADDR, 1},
		{unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1},
		{unix.IPPROTO_TCP, unix.TCP_NODELAY, 1},
		{unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 4},
		{unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 30},
		{unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, 10},
		{unix.IPPROTO_IP, unix.IP_RECVERR, 1},
	}
	for _, o := range opts {
		if err := unix.SetsockoptInt(fd, o.level, o.name, o.val); err != nil {
			return fmt.Errorf("ptzchan: setsockopt %d/%d: %w", o.level, o.name, err)
		}
	}
	return nil
}

// IsWaiting reports whether the channel should be kept open: tx has
// data, or it has a reader attached.
func (c *Channel) IsWaiting() bool {
	return c.Tx.Available() > 0 || c.reader != nil
}

// NeedsReading reports whether the channel should be polled for
// readability: it has a reader, or NEEDS_RESP is set (an Axis-style
// writer waiting on a device response).
func (c *Channel) NeedsReading() bool {
	return c.reader != nil || c.Flags.has(FlagNeedsResp)
}

// NeedsWriting reports whether the channel has data to flush and isn't
// currently blocked waiting for a device response.
func (c *Channel) NeedsWriting() bool {
	return c.Tx.Available() > 0 && !c.Flags.has(FlagNeedsResp)
}

// MarkRespPending sets NEEDS_RESP after a write on a RESP_REQUIRED
// channel (Axis), per spec §4.2.
func (c *Channel) MarkRespPending() {
	if c.Flags.has(FlagRespRequired) {
		c.Flags |= FlagNeedsResp
	}
}

// SetRespRequired marks the channel as one whose writer must wait for a
// device response between writes (set once, at writer setup, for the
// Axis protocol).
func (c *Channel) SetRespRequired() {
	c.Flags |= FlagRespRequired
}

// Open reports whether the channel currently has a live fd, the signal
// internal/writer uses to decide whether a protocol needs to
// re-authenticate (Infinova-D) before its next write.
func (c *Channel) Open() bool {
	return c.Fd > 0
}

// Append copies data into the channel's outbound buffer for the event
// loop to flush, following ccwriter_append's buffer_append-then-copy
// pattern.
func (c *Channel) Append(data []byte) error {
	dst, err := c.Tx.Append(len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// PendingOut reports how many bytes are still buffered, unsent, in Tx.
func (c *Channel) PendingOut() int {
	return c.Tx.Available()
}

// DropPending discards whatever is currently buffered in Tx without
// sending it, following axis_prepare_buffer's "drop stale request"
// behavior for a writer that replaces rather than queues.
func (c *Channel) DropPending() {
	c.Tx.Reset()
}

// Reopen retries the transport open for a channel whose fd has been
// closed, following poller_register_channel's "not open, but waiting ->
// channel_open" retry. It is a no-op if the channel is already open.
func (c *Channel) Reopen() error {
	if c.Open() {
		return nil
	}
	var err error
	switch c.Kind {
	case KindSerial:
		err = c.openSerial()
	case KindUDP:
		err = c.openUDP()
	case KindTCP:
		err = c.openTCP()
	}
	return err
}

// Close resets both buffers and the fd state, per spec §5 cancellation:
// any deferred entries targeting this channel's writer remain queued
// and fire harmlessly later.
func (c *Channel) Close() {
	if c.port != nil {
		c.port.Close()
		c.port = nil
	} else if c.Fd > 0 {
		unix.Close(c.Fd)
	}
	if c.ServerFd > 0 && c.ServerFd != c.Fd {
		unix.Close(c.ServerFd)
	}
	c.Fd, c.ServerFd = 0, 0
	c.Rx.Reset()
	c.Tx.Reset()
	c.Flags &^= FlagNeedsResp
}

// OnReadable drains what's available on Fd into Rx and, if a reader is
// attached, invokes it; it clears NEEDS_RESP, since any response bytes
// at all satisfy an Axis writer's hold.
func (c *Channel) OnReadable() error {
	if _, err := c.Rx.Read(c.Fd); err != nil {
		return err
	}
	c.Flags &^= FlagNeedsResp
	if c.reader != nil {
		c.reader.OnReadable(c.Rx)
	}
	return nil
}

// OnWritable drains Tx to Fd.
func (c *Channel) OnWritable() error {
	_, err := c.Tx.Write(c.Fd)
	return err
}

// Accept accepts a pending connection on a listening channel and rebinds
// Fd to the accepted socket, leaving ServerFd as the listener.
func (c *Channel) Accept() error {
	nfd, _, err := unix.Accept4(c.ServerFd, unix.SOCK_NONBLOCK)
	if err != nil {
		return err
	}
	if c.Fd != c.ServerFd {
		unix.Close(c.Fd)
	}
	c.Fd = nfd
	return nil
}

func splitHostPort(hostport, service string) (host, port string, err error) {
	if idx := strings.LastIndex(hostport, ":"); idx >= 0 {
		return hostport[:idx], hostport[idx+1:], nil
	}
	if service == "" {
		return "", "", fmt.Errorf("ptzchan: %q has no port and no service given", hostport)
	}
	return hostport, service, nil
}

func resolveIPv4(host string) (addr [4]byte, err error) {
	if host == "" || host == "0.0.0.0" {
		return addr, nil
	}
	if host == "localhost" {
		addr[0] = 127
		addr[3] = 1
		return addr, nil
	}
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return addr, fmt.Errorf("ptzchan: only dotted-quad/localhost/0.0.0.0 hosts supported, got %q", host)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return addr, fmt.Errorf("ptzchan: invalid host octet %q", p)
		}
		addr[i] = byte(v)
	}
	return addr, nil
}
