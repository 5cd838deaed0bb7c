// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "time"

// Pattern selects the messaging pattern a socket implements. The set is closed.
type Pattern int

const (
	PatternPub Pattern = iota + 1
	PatternSub
	PatternReq
	PatternRep
	PatternPush
	PatternPull
)

func (p Pattern) String() string {
	switch p {
	case PatternPub:
		return "pub"
	case PatternSub:
		return "sub"
	case PatternReq:
		return "req"
	case PatternRep:
		return "rep"
	case PatternPush:
		return "push"
	case PatternPull:
		return "pull"
	default:
		return "unknown"
	}
}

// Valid reports whether p names one of the supported patterns.
func (p Pattern) Valid() bool {
	return p >= PatternPub && p <= PatternPull
}

// CanSend reports whether sockets of this pattern accept application sends.
func (p Pattern) CanSend() bool {
	switch p {
	case PatternPub, PatternReq, PatternRep, PatternPush:
		return true
	}
	return false
}

// CanRecv reports whether sockets of this pattern deliver inbound messages.
func (p Pattern) CanRecv() bool {
	switch p {
	case PatternSub, PatternReq, PatternRep, PatternPull:
		return true
	}
	return false
}

// Peer reports the pattern a well-formed remote endpoint uses.
func (p Pattern) Peer() Pattern {
	switch p {
	case PatternPub:
		return PatternSub
	case PatternSub:
		return PatternPub
	case PatternReq:
		return PatternRep
	case PatternRep:
		return PatternReq
	case PatternPush:
		return PatternPull
	case PatternPull:
		return PatternPush
	}
	return 0
}

// SocketStatus enumerates the lifecycle state of a socket.
type SocketStatus int32

const (
	SocketOpen SocketStatus = iota
	SocketClosing
	SocketClosed
)

func (s SocketStatus) String() string {
	switch s {
	case SocketOpen:
		return "open"
	case SocketClosing:
		return "closing"
	case SocketClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SocketStats is a point-in-time snapshot of socket counters.
type SocketStats struct {
	Pattern       Pattern
	Status        SocketStatus
	Peers         int
	InboundDepth  int
	OutboundDepth int
	Sent          uint64
	Received      uint64
	Dropped       uint64
	Filtered      uint64
	PeerFailures  uint64
	OpenedAt      time.Time
}
