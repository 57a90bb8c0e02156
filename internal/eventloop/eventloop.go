// Package eventloop implements the main poll loop that drives every
// channel's I/O plus the deferred-retry timer and a config-file watch,
// grounded directly on original_source/poller.c. The original multiplexes
// channel fds, one self-pipe fd for its red-black-tree timer, and one
// inotify fd through a single poll() call; this uses epoll instead (one
// registration per fd, edited in place as readiness needs change,
// rather than rebuilt from scratch every iteration) plus
// internal/timer's timerfd for the retry clock and golang.org/x/sys/unix
// inotify for the config watch.
package eventloop

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	ptzchan "github.com/boxofrox/ptzmixer/internal/chan"
	"github.com/boxofrox/ptzmixer/internal/deferred"
	"github.com/boxofrox/ptzmixer/internal/ptzlog"
	"github.com/boxofrox/ptzmixer/internal/timer"
)

// maxEvents bounds a single EpollWait batch; channels/timer/inotify
// fds below this count all surface in one pass.
const maxEvents = 64

// ConfigWatcher is invoked when the watched config file is closed after
// a write, or moved, mirroring poller_check_config's call into
// config_verify. It returns true if the new config was accepted.
type ConfigWatcher func(path string) bool

// Loop owns the epoll fd plus every channel, the deferred queue's timer,
// and an optional inotify watch on the config file.
type Loop struct {
	Log ptzlog.Sink

	epfd int

	channels []*ptzchan.Channel
	defer_   *deferred.Queue
	timer    *timer.Timer

	inotifyFd  int
	inotifyWd  int
	configPath string
	onConfig   ConfigWatcher
	hasInotify bool
	reload     bool
}

// New builds a Loop over channels, arming dq's rearm callback to drive
// the loop's own timer and optionally watching configPath for rewrites.
// configPath may be empty to skip the watch entirely.
func New(channels []*ptzchan.Channel, dq *deferred.Queue, configPath string, onConfig ConfigWatcher, log ptzlog.Sink) (*Loop, error) {
	if log == nil {
		log = ptzlog.Discard
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventloop: epoll_create1: %w", err)
	}
	tm, err := timer.New()
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventloop: timer: %w", err)
	}

	l := &Loop{
		Log:        log,
		epfd:       epfd,
		channels:   channels,
		defer_:     dq,
		timer:      tm,
		configPath: configPath,
		onConfig:   onConfig,
	}
	dq.SetArm(func(next time.Time) { _ = tm.ArmAt(next) })

	if err := l.addFd(tm.Fd(), unix.EPOLLIN); err != nil {
		l.Close()
		return nil, err
	}

	if configPath != "" {
		ifd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("eventloop: inotify_init1: %w", err)
		}
		wd, err := unix.InotifyAddWatch(ifd, configPath, unix.IN_CLOSE_WRITE|unix.IN_MOVE_SELF)
		if err != nil {
			unix.Close(ifd)
			l.Close()
			return nil, fmt.Errorf("eventloop: inotify_add_watch %s: %w", configPath, err)
		}
		l.inotifyFd = ifd
		l.inotifyWd = wd
		l.hasInotify = true
		if err := l.addFd(ifd, unix.EPOLLIN); err != nil {
			l.Close()
			return nil, err
		}
	}

	for _, c := range channels {
		if c.Open() {
			if err := l.addFd(c.Fd, l.channelEvents(c)); err != nil {
				l.Close()
				return nil, err
			}
		}
	}

	return l, nil
}

func (l *Loop) addFd(fd int, events uint32) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (l *Loop) modFd(fd int, events uint32) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (l *Loop) delFd(fd int) {
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// channelEvents computes the epoll event mask for chn, following
// poller_register_channel's NeedsReading/NeedsWriting checks.
func (l *Loop) channelEvents(c *ptzchan.Channel) uint32 {
	var ev uint32 = unix.EPOLLHUP | unix.EPOLLERR
	if c.NeedsReading() {
		ev |= unix.EPOLLIN
	}
	if c.NeedsWriting() {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// registerChannels re-opens any waiting-but-closed channel and
// synchronizes epoll registration with its current read/write needs,
// following poller_register_events.
func (l *Loop) registerChannels() {
	for _, c := range l.channels {
		wasOpen := c.Open()
		if !wasOpen && c.IsWaiting() {
			if err := c.Reopen(); err != nil {
				l.Log.Logf("eventloop: reopen %s: %v", c.Name, err)
				continue
			}
			if c.Open() {
				if err := l.addFd(c.Fd, l.channelEvents(c)); err != nil {
					l.Log.Logf("eventloop: register %s: %v", c.Name, err)
				}
			}
			continue
		}
		if c.Open() {
			if err := l.modFd(c.Fd, l.channelEvents(c)); err != nil {
				l.Log.Logf("eventloop: re-register %s: %v", c.Name, err)
			}
		}
	}
}

// ErrReload is returned by Run when the watched config file was
// rewritten and passed verification, following poller_loop's "return 0"
// signal that tells the outer daemon loop in original_source/main.c's
// run_protozoa to tear everything down and rebuild from the new file.
var ErrReload = fmt.Errorf("eventloop: config changed, reload requested")

// Run polls forever (or until ctx-free caller interrupt via Close),
// following poller_loop's register-then-poll cycle. It returns
// ErrReload, rather than restarting in place, so the caller rebuilds
// the whole Graph/Loop pair against the new config exactly as
// run_protozoa's outer while(true) loop does.
func (l *Loop) Run() error {
	events := make([]unix.EpollEvent, maxEvents)
	for {
		l.registerChannels()
		n, err := unix.EpollWait(l.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("eventloop: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			l.dispatch(events[i])
		}
		if l.reload {
			return ErrReload
		}
	}
}

func (l *Loop) dispatch(ev unix.EpollEvent) {
	fd := int(ev.Fd)
	switch {
	case fd == l.timer.Fd():
		l.handleTimer()
	case l.hasInotify && fd == l.inotifyFd:
		l.handleConfigEvent()
	default:
		l.handleChannel(fd, ev.Events)
	}
}

// handleTimer mirrors poller_defer_events: drain the expiration count
// and pop+resend every entry whose fire-at has arrived.
func (l *Loop) handleTimer() {
	if _, err := l.timer.Read(); err != nil {
		return
	}
	now := time.Now()
	for {
		fireAt, ok := l.defer_.PeekFireAt()
		if !ok || fireAt.After(now) {
			l.defer_.Rearm()
			return
		}
		e := l.defer_.Pop()
		if e == nil {
			return
		}
		e.Writer.Resend(e.Packet)
	}
}

// handleConfigEvent mirrors poller_check_config: drain one inotify
// event record and re-verify the config file.
func (l *Loop) handleConfigEvent() {
	var buf [unix.SizeofInotifyEvent]byte
	if _, err := unix.Read(l.inotifyFd, buf[:]); err != nil {
		return
	}
	if l.onConfig != nil && l.onConfig(l.configPath) {
		l.reload = true
	}
}

// handleChannel mirrors poller_channel_events: hangup/error closes the
// channel outright; otherwise flush pending writes before draining reads,
// closing on either operation's failure.
func (l *Loop) handleChannel(fd int, revents uint32) {
	var chn *ptzchan.Channel
	for _, c := range l.channels {
		if c.Fd == fd {
			chn = c
			break
		}
	}
	if chn == nil {
		return
	}
	if revents&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		l.closeChannel(chn)
		return
	}
	if chn.Flags&ptzchan.FlagListen != 0 && revents&unix.EPOLLIN != 0 {
		if err := chn.Accept(); err != nil {
			l.Log.Logf("eventloop: accept %s: %v", chn.Name, err)
		} else {
			l.delFd(fd)
			if err := l.addFd(chn.Fd, l.channelEvents(chn)); err != nil {
				l.Log.Logf("eventloop: register accepted %s: %v", chn.Name, err)
			}
		}
		return
	}
	if revents&unix.EPOLLOUT != 0 {
		if err := chn.OnWritable(); err != nil {
			l.closeChannel(chn)
			return
		}
	}
	if revents&unix.EPOLLIN != 0 {
		if err := chn.OnReadable(); err != nil {
			l.closeChannel(chn)
			return
		}
	}
}

func (l *Loop) closeChannel(chn *ptzchan.Channel) {
	l.delFd(chn.Fd)
	chn.Close()
}

// Close releases the epoll fd, the timer, and the inotify watch.
func (l *Loop) Close() {
	if l.hasInotify {
		_, _ = unix.InotifyRmWatch(l.inotifyFd, uint32(l.inotifyWd))
		unix.Close(l.inotifyFd)
	}
	if l.timer != nil {
		l.timer.Close()
	}
	if l.epfd > 0 {
		unix.Close(l.epfd)
	}
}
