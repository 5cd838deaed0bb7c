// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the non-blocking transport contract shared by tcp, ipc, inproc and
// quic endpoints. Nothing in this contract ever suspends the caller: when no
// progress is possible the call returns ErrWouldBlock and the reactor waits
// for readiness.

package api

// Pollable is any transport object the reactor can watch for readiness.
type Pollable interface {
	// Fd returns the OS-level descriptor, or -1 for objects that signal
	// readiness in software through SetNotify.
	Fd() int

	// SetNotify installs the readiness callback for software objects. The
	// callback is invoked from arbitrary goroutines whenever state changes
	// (data arrived, space freed, peer closed) and must not block.
	// OS-backed objects ignore it.
	SetNotify(fn func())
}

// Handle is one established, full-duplex byte-stream connection.
type Handle interface {
	Pollable

	// Read copies available bytes into p. It returns ErrWouldBlock when
	// nothing is buffered and ErrClosed once the remote side has closed and
	// all buffered bytes were consumed.
	Read(p []byte) (n int, err error)

	// Write copies as much of p as fits. It returns ErrWouldBlock when no
	// byte could be written and ErrClosed when the connection is gone.
	Write(p []byte) (n int, err error)

	// Close releases the connection. It is idempotent.
	Close() error

	// RemoteAddr describes the remote endpoint for diagnostics.
	RemoteAddr() string
}

// Listener accepts inbound connections without blocking.
type Listener interface {
	Pollable

	// Accept returns the next pending connection or ErrWouldBlock.
	Accept() (Handle, error)

	// Close stops listening. It is idempotent.
	Close() error

	// Addr returns the resolved endpoint URI, e.g. with the kernel-chosen port.
	Addr() string
}
