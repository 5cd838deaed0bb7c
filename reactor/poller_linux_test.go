//go:build linux
// +build linux

package reactor_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/reactor"
)

func TestEpollReadiness(t *testing.T) {
	r := newReactor(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)

	got := make(chan []byte, 1)
	var reg *reactor.Registration
	var regErr error
	require.NoError(t, r.Do(func() {
		reg, regErr = r.Register(rawFd(fds[0]), api.EventRead, api.ReadyFunc(func(api.Events) {
			buf := make([]byte, 16)
			n, err := unix.Read(fds[0], buf)
			if err != nil || n == 0 {
				return
			}
			select {
			case got <- buf[:n]:
			default:
			}
		}))
	}))
	require.NoError(t, regErr)
	defer func() {
		_ = r.Do(func() { _ = reg.Close() })
		unix.Close(fds[0])
		unix.Close(fds[1])
	}()

	_, err = unix.Write(fds[1], []byte("hi"))
	require.NoError(t, err)
	select {
	case b := <-got:
		assert.Equal(t, []byte("hi"), b)
	case <-time.After(2 * time.Second):
		t.Fatal("epoll readiness not dispatched")
	}
}

func TestEpollWakeup(t *testing.T) {
	r, err := reactor.New(2, reactor.Config{PollTimeout: 5 * time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer r.Stop()
	// Let the loop block in epoll_wait, then make sure Post interrupts it.
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	require.NoError(t, r.Do(func() {}))
	assert.Less(t, time.Since(start), time.Second)
}

type rawFd int

func (f rawFd) Fd() int          { return int(f) }
func (f rawFd) SetNotify(func()) {}
