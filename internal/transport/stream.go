// File: internal/transport/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// streamConn adapts a blocking io.ReadWriteCloser (net.Conn, quic stream) to
// the non-blocking Handle contract with one reader and one writer goroutine
// pumping bounded buffers.

package transport

import (
	"io"
	"sync"
	"time"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/pool"
)

// closeFlushTimeout bounds how long a closed stream keeps writing bytes that
// were accepted before Close.
const closeFlushTimeout = time.Second

type deadliner interface {
	SetDeadline(t time.Time) error
}

type streamConn struct {
	rwc    io.ReadWriteCloser
	remote string
	limit  int
	chunks *pool.BytePool
	after  func() // extra teardown once rwc is closed

	mu       sync.Mutex
	cond     *sync.Cond
	in       []byte
	out      []byte
	inflight int
	rerr     error
	werr     error
	closed   bool
	notify   func()
}

func newStreamConn(rwc io.ReadWriteCloser, remote string, limit int, after func()) *streamConn {
	if limit <= 0 {
		limit = DefaultInprocBufferBytes
	}
	c := &streamConn{
		rwc:    rwc,
		remote: remote,
		limit:  limit,
		chunks: pool.Chunks(),
		after:  after,
	}
	c.cond = sync.NewCond(&c.mu)
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *streamConn) fire() {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *streamConn) readLoop() {
	buf := c.chunks.Get()
	defer c.chunks.Put(buf)
	for {
		n, err := c.rwc.Read(buf)
		c.mu.Lock()
		if n > 0 {
			c.in = append(c.in, buf[:n]...)
		}
		if err != nil {
			c.rerr = err
			c.mu.Unlock()
			c.fire()
			return
		}
		c.mu.Unlock()
		if n > 0 {
			c.fire()
		}

		c.mu.Lock()
		for len(c.in) >= c.limit && !c.closed {
			c.cond.Wait()
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
	}
}

func (c *streamConn) writeLoop() {
	defer func() {
		_ = c.rwc.Close()
		if c.after != nil {
			c.after()
		}
	}()
	for {
		c.mu.Lock()
		for len(c.out) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.out) == 0 {
			c.mu.Unlock()
			return
		}
		chunk := c.out
		c.out = nil
		c.inflight = len(chunk)
		c.mu.Unlock()

		_, err := c.rwc.Write(chunk)

		c.mu.Lock()
		c.inflight = 0
		if err != nil {
			c.werr = err
			c.out = nil
		}
		c.mu.Unlock()
		c.fire()
		if err != nil {
			return
		}
	}
}

func (c *streamConn) Fd() int { return -1 }

func (c *streamConn) SetNotify(fn func()) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

func (c *streamConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, api.ErrClosed
	}
	if len(c.in) == 0 {
		failed := c.rerr != nil
		c.mu.Unlock()
		if failed {
			return 0, api.ErrClosed
		}
		return 0, api.ErrWouldBlock
	}
	wasFull := len(c.in) >= c.limit
	n := copy(p, c.in)
	rest := copy(c.in, c.in[n:])
	c.in = c.in[:rest]
	if wasFull {
		c.cond.Broadcast()
	}
	c.mu.Unlock()
	return n, nil
}

func (c *streamConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.werr != nil || c.rerr != nil {
		return 0, api.ErrClosed
	}
	space := c.limit - len(c.out) - c.inflight
	if space <= 0 {
		return 0, api.ErrWouldBlock
	}
	if len(p) > space {
		p = p[:space]
	}
	c.out = append(c.out, p...)
	c.cond.Broadcast()
	return len(p), nil
}

// Close stops both pumps. Bytes already accepted by Write are still flushed
// for up to closeFlushTimeout.
func (c *streamConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := len(c.out) + c.inflight
	c.in = nil
	c.cond.Broadcast()
	c.mu.Unlock()

	if d, ok := c.rwc.(deadliner); ok {
		if pending > 0 {
			_ = d.SetDeadline(time.Now().Add(closeFlushTimeout))
		} else {
			_ = d.SetDeadline(time.Now())
		}
	}
	return nil
}

func (c *streamConn) RemoteAddr() string { return c.remote }
