// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the transport contracts.

package fake

import (
	"sync"

	"github.com/momentics/hioload-mq/api"
)

// Handle is a scripted api.Handle. Inbound bytes are fed by the test,
// outbound bytes are captured, and failures can be injected at any time.
type Handle struct {
	mu         sync.Mutex
	remote     string
	in         []byte
	out        []byte
	readErr    error
	writeErr   error
	writeLimit int
	closed     bool
	notify     func()
}

// NewHandle creates a fake connection reporting remote as its address.
func NewHandle(remote string) *Handle {
	return &Handle{remote: remote, writeLimit: -1}
}

func (h *Handle) fire() {
	h.mu.Lock()
	fn := h.notify
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Fd implements api.Pollable; fakes signal readiness in software.
func (h *Handle) Fd() int { return -1 }

// SetNotify implements api.Pollable.
func (h *Handle) SetNotify(fn func()) {
	h.mu.Lock()
	h.notify = fn
	h.mu.Unlock()
}

// Read implements api.Handle.
func (h *Handle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, api.ErrClosed
	}
	if len(h.in) == 0 {
		if h.readErr != nil {
			return 0, h.readErr
		}
		return 0, api.ErrWouldBlock
	}
	n := copy(p, h.in)
	h.in = h.in[n:]
	return n, nil
}

// Write implements api.Handle.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, api.ErrClosed
	}
	if h.writeErr != nil {
		return 0, h.writeErr
	}
	if h.writeLimit == 0 {
		return 0, api.ErrWouldBlock
	}
	if h.writeLimit > 0 && len(p) > h.writeLimit {
		p = p[:h.writeLimit]
	}
	if h.writeLimit > 0 {
		h.writeLimit -= len(p)
	}
	h.out = append(h.out, p...)
	return len(p), nil
}

// Close implements api.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

// RemoteAddr implements api.Handle.
func (h *Handle) RemoteAddr() string { return h.remote }

// Feed queues inbound bytes and signals readiness.
func (h *Handle) Feed(p []byte) {
	h.mu.Lock()
	h.in = append(h.in, p...)
	h.mu.Unlock()
	h.fire()
}

// Hangup makes Read fail with api.ErrClosed once buffered bytes are consumed.
func (h *Handle) Hangup() {
	h.SetReadError(api.ErrClosed)
}

// SetReadError configures the error returned once inbound bytes run out.
func (h *Handle) SetReadError(err error) {
	h.mu.Lock()
	h.readErr = err
	h.mu.Unlock()
	h.fire()
}

// SetWriteError configures the error returned by Write.
func (h *Handle) SetWriteError(err error) {
	h.mu.Lock()
	h.writeErr = err
	h.mu.Unlock()
	h.fire()
}

// SetWriteLimit caps how many more bytes Write accepts; -1 removes the cap.
// Raising the cap signals readiness.
func (h *Handle) SetWriteLimit(n int) {
	h.mu.Lock()
	h.writeLimit = n
	h.mu.Unlock()
	h.fire()
}

// Written returns a copy of everything written so far.
func (h *Handle) Written() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.out...)
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

var _ api.Handle = (*Handle)(nil)
