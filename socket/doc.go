// Package socket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message sockets implementing one messaging pattern each: PUB/SUB, REQ/REP
// and PUSH/PULL.
//
// A Socket holds an inbound and an outbound message queue guarded by one
// mutex; application goroutines only ever touch those queues. Peers, framers
// and transport handles belong to the socket's reactor and are driven only
// from its loop goroutine.
package socket
