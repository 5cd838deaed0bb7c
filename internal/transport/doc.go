// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking byte-stream transports addressed by endpoint URIs:
// tcp://host:port, ipc://path, inproc://name and quic://host:port.
//
// On Linux tcp and ipc connections are raw non-blocking descriptors polled by
// epoll. inproc pipes and stream-backed connections (quic everywhere, tcp and
// ipc on other platforms) signal readiness in software through SetNotify.
package transport
