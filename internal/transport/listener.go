// File: internal/transport/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"sync"

	"github.com/momentics/hioload-mq/api"
)

// pumpListener turns a blocking accept loop into a non-blocking Listener.
// serve runs on its own goroutine and hands every accepted connection to
// push until it returns.
type pumpListener struct {
	addr    string
	closeFn func() error

	mu      sync.Mutex
	backlog []api.Handle
	done    bool
	closed  bool
	notify  func()
}

func newPumpListener(addr string, serve func(push func(api.Handle)) error, closeFn func() error) *pumpListener {
	l := &pumpListener{addr: addr, closeFn: closeFn}
	go func() {
		_ = serve(l.push)
		l.mu.Lock()
		l.done = true
		fn := l.notify
		l.mu.Unlock()
		if fn != nil {
			fn()
		}
	}()
	return l
}

func (l *pumpListener) push(h api.Handle) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = h.Close()
		return
	}
	l.backlog = append(l.backlog, h)
	fn := l.notify
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (l *pumpListener) Fd() int { return -1 }

func (l *pumpListener) SetNotify(fn func()) {
	l.mu.Lock()
	l.notify = fn
	l.mu.Unlock()
}

func (l *pumpListener) Accept() (api.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, api.ErrClosed
	}
	if len(l.backlog) == 0 {
		if l.done {
			return nil, api.ErrClosed
		}
		return nil, api.ErrWouldBlock
	}
	h := l.backlog[0]
	l.backlog[0] = nil
	l.backlog = l.backlog[1:]
	return h, nil
}

func (l *pumpListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	pending := l.backlog
	l.backlog = nil
	l.mu.Unlock()

	for _, h := range pending {
		_ = h.Close()
	}
	return l.closeFn()
}

func (l *pumpListener) Addr() string { return l.addr }
