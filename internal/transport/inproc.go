// File: internal/transport/inproc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-memory transport. Each connection is a pair of bounded byte queues; a
// full queue makes Write return ErrWouldBlock so slow consumers push back on
// producers exactly like a kernel socket buffer.

package transport

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-mq/api"
)

// DefaultInprocBufferBytes bounds each direction of an inproc pipe.
const DefaultInprocBufferBytes = 256 << 10

type pipe struct {
	mu     sync.Mutex
	limit  int
	buf    [2][]byte // buf[i] holds bytes written by side i
	closed [2]bool
	notify [2]func()
}

// pipeEnd is one side of an inproc connection.
type pipeEnd struct {
	p      *pipe
	side   int
	remote string
}

func newPipe(limit int, name string) (*pipeEnd, *pipeEnd) {
	if limit <= 0 {
		limit = DefaultInprocBufferBytes
	}
	p := &pipe{limit: limit}
	addr := string(SchemeInproc) + "://" + name
	return &pipeEnd{p: p, side: 0, remote: addr}, &pipeEnd{p: p, side: 1, remote: addr}
}

func (e *pipeEnd) other() int { return 1 - e.side }

func (e *pipeEnd) Fd() int { return -1 }

func (e *pipeEnd) SetNotify(fn func()) {
	e.p.mu.Lock()
	e.p.notify[e.side] = fn
	e.p.mu.Unlock()
}

// wake calls the callback of side while no lock is held.
func (e *pipeEnd) wake(side int) {
	e.p.mu.Lock()
	fn := e.p.notify[side]
	e.p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (e *pipeEnd) Read(b []byte) (int, error) {
	p := e.p
	p.mu.Lock()
	src := p.buf[e.other()]
	if len(src) == 0 {
		closed := p.closed[e.side] || p.closed[e.other()]
		p.mu.Unlock()
		if closed {
			return 0, api.ErrClosed
		}
		return 0, api.ErrWouldBlock
	}
	if p.closed[e.side] {
		p.mu.Unlock()
		return 0, api.ErrClosed
	}
	n := copy(b, src)
	rest := copy(src, src[n:])
	p.buf[e.other()] = src[:rest]
	p.mu.Unlock()

	if n > 0 {
		e.wake(e.other())
	}
	return n, nil
}

func (e *pipeEnd) Write(b []byte) (int, error) {
	p := e.p
	p.mu.Lock()
	if p.closed[e.side] || p.closed[e.other()] {
		p.mu.Unlock()
		return 0, api.ErrClosed
	}
	space := p.limit - len(p.buf[e.side])
	if space <= 0 {
		p.mu.Unlock()
		return 0, api.ErrWouldBlock
	}
	if len(b) > space {
		b = b[:space]
	}
	p.buf[e.side] = append(p.buf[e.side], b...)
	p.mu.Unlock()

	if len(b) > 0 {
		e.wake(e.other())
	}
	return len(b), nil
}

func (e *pipeEnd) Close() error {
	p := e.p
	p.mu.Lock()
	if p.closed[e.side] {
		p.mu.Unlock()
		return nil
	}
	p.closed[e.side] = true
	// Bytes already written stay readable by the other side.
	p.buf[e.other()] = nil
	p.mu.Unlock()
	e.wake(e.other())
	return nil
}

func (e *pipeEnd) RemoteAddr() string { return e.remote }

// InprocRegistry maps inproc names to listeners. One registry belongs to one
// Context; names are not visible across contexts.
type InprocRegistry struct {
	mu          sync.Mutex
	listeners   map[string]*inprocListener
	bufferBytes int
}

// NewInprocRegistry returns an empty registry whose pipes buffer up to
// bufferBytes per direction.
func NewInprocRegistry(bufferBytes int) *InprocRegistry {
	return &InprocRegistry{
		listeners:   make(map[string]*inprocListener),
		bufferBytes: bufferBytes,
	}
}

// Listen binds name.
func (r *InprocRegistry) Listen(name string) (api.Listener, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listeners[name]; ok {
		return nil, fmt.Errorf("inproc://%s: %w", name, api.ErrAlreadyExists)
	}
	l := &inprocListener{name: name, reg: r}
	r.listeners[name] = l
	return l, nil
}

// Dial connects to a bound name.
func (r *InprocRegistry) Dial(name string) (api.Handle, error) {
	r.mu.Lock()
	l, ok := r.listeners[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("inproc://%s is not bound: %w", name, api.ErrNotFound)
	}
	client, server := newPipe(r.bufferBytes, name)
	if err := l.enqueue(server); err != nil {
		return nil, err
	}
	return client, nil
}

// Bound reports whether name currently has a listener.
func (r *InprocRegistry) Bound(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.listeners[name]
	return ok
}

func (r *InprocRegistry) remove(l *inprocListener) {
	r.mu.Lock()
	if r.listeners[l.name] == l {
		delete(r.listeners, l.name)
	}
	r.mu.Unlock()
}

type inprocListener struct {
	name string
	reg  *InprocRegistry

	mu      sync.Mutex
	backlog []*pipeEnd
	closed  bool
	notify  func()
}

func (l *inprocListener) enqueue(e *pipeEnd) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("inproc://%s: %w", l.name, api.ErrClosed)
	}
	l.backlog = append(l.backlog, e)
	fn := l.notify
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (l *inprocListener) Fd() int { return -1 }

func (l *inprocListener) SetNotify(fn func()) {
	l.mu.Lock()
	l.notify = fn
	l.mu.Unlock()
}

func (l *inprocListener) Accept() (api.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, api.ErrClosed
	}
	if len(l.backlog) == 0 {
		return nil, api.ErrWouldBlock
	}
	e := l.backlog[0]
	l.backlog[0] = nil
	l.backlog = l.backlog[1:]
	return e, nil
}

func (l *inprocListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	pending := l.backlog
	l.backlog = nil
	l.mu.Unlock()

	l.reg.remove(l)
	for _, e := range pending {
		_ = e.Close()
	}
	return nil
}

func (l *inprocListener) Addr() string {
	return string(SchemeInproc) + "://" + l.name
}
