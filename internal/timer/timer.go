// Package timer implements the single process-wide interval timer the
// event loop waits on alongside its channel fds, grounded on
// original_source/timer.c: that original arms a SIGALRM/setitimer pair
// and funnels the signal through a self-pipe so it can sit in the same
// poll() set as every other fd. The design notes explicitly allow
// substituting any readable timer fd for that self-pipe, so this uses
// Linux's timerfd directly — one fd, armed with an absolute or relative
// deadline, with no signal handler required.
package timer

import (
	"time"

	"golang.org/x/sys/unix"
)

// Timer is a single-shot countdown exposed as a pollable fd.
type Timer struct {
	fd int
}

// New creates a disarmed, non-blocking timerfd.
func New() (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Timer{fd: fd}, nil
}

// Fd returns the descriptor to register with the event loop's poller.
func (t *Timer) Fd() int {
	return t.fd
}

// Arm schedules the timer to fire once after d, following timer_arm's
// "negative or zero duration fires immediately" behavior for an entry
// whose deadline has already passed.
func (t *Timer) Arm(d time.Duration) error {
	if d < 0 {
		d = 0
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(0),
		Value:    unix.NsecToTimespec(d.Nanoseconds()),
	}
	if spec.Value.Sec == 0 && spec.Value.Nsec == 0 {
		// timerfd treats an all-zero Value as "disarm", so alias a
		// zero duration to the smallest representable delay instead.
		spec.Value = unix.NsecToTimespec(1)
	}
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

// ArmAt schedules the timer to fire once at the wall-clock deadline, or
// disarms it if deadline is the zero Time (the "queue is empty" case).
func (t *Timer) ArmAt(deadline time.Time) error {
	if deadline.IsZero() {
		return t.Disarm()
	}
	return t.Arm(time.Until(deadline))
}

// Disarm stops the timer from firing until armed again, following
// timer_disarm's all-zero itimerspec.
func (t *Timer) Disarm() error {
	spec := unix.ItimerSpec{}
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

// Read drains the expiration count from the timerfd after a readable
// event, following timer_read's "consume exactly one event" role for
// the self-pipe. Returns the number of expirations coalesced since the
// last read (always at least 1 when the fd was actually readable).
func (t *Timer) Read() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 8 {
		return 0, nil
	}
	var count uint64
	for i := 7; i >= 0; i-- {
		count = count<<8 | uint64(buf[i])
	}
	return count, nil
}

// Close releases the timerfd, following timer_destroy.
func (t *Timer) Close() error {
	return unix.Close(t.fd)
}
