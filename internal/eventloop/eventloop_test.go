package eventloop

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"

	ptzchan "github.com/boxofrox/ptzmixer/internal/chan"
	"github.com/boxofrox/ptzmixer/internal/deferred"
	"github.com/boxofrox/ptzmixer/internal/iobuf"
	"github.com/boxofrox/ptzmixer/internal/ptzlog"
)

func TestNewAndCloseWithNoChannels(t *testing.T) {
	dq := deferred.New()
	l, err := New(nil, dq, "", nil, ptzlog.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if l.epfd <= 0 {
		t.Fatalf("expected a valid epoll fd, got %d", l.epfd)
	}
}

func TestChannelEventsReflectsReadWriteNeeds(t *testing.T) {
	dq := deferred.New()
	l, err := New(nil, dq, "", nil, ptzlog.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	c := ptzchan.Channel{Rx: iobuf.New(), Tx: iobuf.New()}
	ev := l.channelEvents(&c)
	if ev&unix.EPOLLIN != 0 {
		t.Fatal("channel with no reader and no pending response should not need EPOLLIN")
	}
	if ev&(unix.EPOLLHUP|unix.EPOLLERR) == 0 {
		t.Fatal("every channel registration should watch hangup/error")
	}
}

func TestConfigWatchRegistersInotify(t *testing.T) {
	dq := deferred.New()
	path := t.TempDir() + "/config.txt"
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	called := false
	l, err := New(nil, dq, path, func(string) bool { called = true; return true }, ptzlog.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if !l.hasInotify {
		t.Fatal("expected inotify watch to be active")
	}
	_ = called
}
