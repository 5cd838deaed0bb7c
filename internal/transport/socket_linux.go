//go:build linux
// +build linux

// File: internal/transport/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// tcp and ipc on Linux: the net package resolves, binds and dials, then the
// descriptor is duplicated and driven directly with non-blocking syscalls so
// the reactor can poll it with epoll.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/momentics/hioload-mq/api"
	"golang.org/x/sys/unix"
)

func netName(s Scheme) string {
	if s == SchemeIPC {
		return "unix"
	}
	return "tcp"
}

// takeFd duplicates the descriptor behind c as a non-blocking close-on-exec fd.
func takeFd(c syscall.Conn) (int, error) {
	rc, err := c.SyscallConn()
	if err != nil {
		return -1, err
	}
	nfd := -1
	var derr error
	if err := rc.Control(func(fd uintptr) {
		nfd, derr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return -1, err
	}
	if derr != nil {
		return -1, fmt.Errorf("dup: %w", derr)
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	return nfd, nil
}

func listenSocket(ep Endpoint, _ int) (api.Listener, error) {
	ln, err := net.Listen(netName(ep.Scheme), ep.Address)
	if err != nil {
		return nil, err
	}
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	sc, ok := ln.(syscall.Conn)
	if !ok {
		ln.Close()
		return nil, api.ErrNotSupported
	}
	fd, err := takeFd(sc)
	addr := ln.Addr().String()
	ln.Close()
	if err != nil {
		return nil, err
	}
	l := &fdListener{fd: fd, scheme: ep.Scheme, addr: addr}
	if ep.Scheme == SchemeIPC {
		l.path = addr
	}
	return l, nil
}

func dialSocket(ctx context.Context, ep Endpoint, _ int) (api.Handle, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, netName(ep.Scheme), ep.Address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, api.ErrNotSupported
	}
	fd, err := takeFd(sc)
	if err != nil {
		return nil, err
	}
	remote := ep.String()
	if ep.Scheme == SchemeTCP {
		remote = string(SchemeTCP) + "://" + conn.RemoteAddr().String()
	}
	return &fdConn{fd: fd, remote: remote}, nil
}

type fdListener struct {
	fd     int
	scheme Scheme
	addr   string
	path   string
	closed atomic.Bool
}

func (l *fdListener) Fd() int { return l.fd }

func (l *fdListener) SetNotify(func()) {}

func (l *fdListener) Accept() (api.Handle, error) {
	if l.closed.Load() {
		return nil, api.ErrClosed
	}
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			if l.scheme == SchemeTCP {
				_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			}
			return &fdConn{fd: nfd, remote: string(l.scheme) + "://" + sockaddrString(sa, l.addr)}, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ECONNABORTED):
			return nil, api.ErrWouldBlock
		default:
			return nil, fmt.Errorf("accept: %w", err)
		}
	}
}

func (l *fdListener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := unix.Close(l.fd)
	if l.path != "" {
		_ = os.Remove(l.path)
	}
	return err
}

func (l *fdListener) Addr() string {
	return string(l.scheme) + "://" + l.addr
}

type fdConn struct {
	fd     int
	remote string
	closed atomic.Bool
}

func (c *fdConn) Fd() int { return c.fd }

func (c *fdConn) SetNotify(func()) {}

func (c *fdConn) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, api.ErrClosed
	}
	for {
		n, err := unix.Read(c.fd, p)
		switch {
		case err == nil:
			if n == 0 && len(p) > 0 {
				return 0, api.ErrClosed
			}
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, api.ErrWouldBlock
		default:
			return 0, fmt.Errorf("read: %v: %w", err, api.ErrClosed)
		}
	}
}

func (c *fdConn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, api.ErrClosed
	}
	for {
		n, err := unix.SendmsgN(c.fd, p, nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, api.ErrWouldBlock
		default:
			return 0, fmt.Errorf("write: %v: %w", err, api.ErrClosed)
		}
	}
}

func (c *fdConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(c.fd)
}

func (c *fdConn) RemoteAddr() string { return c.remote }

func sockaddrString(sa unix.Sockaddr, fallback string) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		if a.Name != "" {
			return a.Name
		}
	}
	return fallback
}
