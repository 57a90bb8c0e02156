package timer

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestNewTimerIsDisarmedAndPollable(t *testing.T) {
	tm, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer tm.Close()

	if tm.Fd() <= 0 {
		t.Fatalf("expected a valid fd, got %d", tm.Fd())
	}

	fds := []unix.PollFd{{Fd: int32(tm.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("disarmed timer should not be readable, poll returned %d", n)
	}
}

func TestArmFiresAfterDuration(t *testing.T) {
	tm, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer tm.Close()

	if err := tm.Arm(5 * time.Millisecond); err != nil {
		t.Fatal(err)
	}

	fds := []unix.PollFd{{Fd: int32(tm.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected timer to become readable, poll returned %d", n)
	}

	count, err := tm.Read()
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Fatal("expected at least one expiration")
	}
}

func TestDisarmPreventsFiring(t *testing.T) {
	tm, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer tm.Close()

	if err := tm.Arm(5 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := tm.Disarm(); err != nil {
		t.Fatal(err)
	}

	fds := []unix.PollFd{{Fd: int32(tm.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 50)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("disarmed timer should not fire, poll returned %d", n)
	}
}

func TestArmAtZeroTimeDisarms(t *testing.T) {
	tm, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer tm.Close()

	if err := tm.Arm(5 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := tm.ArmAt(time.Time{}); err != nil {
		t.Fatal(err)
	}

	fds := []unix.PollFd{{Fd: int32(tm.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 50)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("ArmAt zero time should disarm, poll returned %d", n)
	}
}
