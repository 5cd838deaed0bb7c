// File: socket/pattern.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import "github.com/momentics/hioload-mq/api"

// pattern holds the routing and state rules of one messaging pattern.
//
// The before/after hooks and the ready probes run on application goroutines
// with Socket.mu held. route, deliver and detach run on the reactor loop
// without the lock.
type pattern interface {
	beforeSend(m api.Message) error
	afterSend(env *envelope)
	beforeRecv() error
	afterRecv(env envelope)
	sendReady() bool
	recvReady() bool

	// route hands env to peers and reports whether it left the queue.
	route(env envelope) bool
	// deliver filters an inbound message; an error resets the peer.
	deliver(p *peer, m api.Message) (bool, error)
	detach(p *peer, cerr *api.ConnectionError)
}

func newPattern(kind api.Pattern, s *Socket) pattern {
	base := basePattern{s: s}
	switch kind {
	case api.PatternPub:
		return &pubPattern{basePattern: base}
	case api.PatternSub:
		return &subPattern{basePattern: base, subs: make(map[string]int)}
	case api.PatternReq:
		return &reqPattern{basePattern: base}
	case api.PatternRep:
		return &repPattern{basePattern: base}
	case api.PatternPush:
		return &pushPattern{basePattern: base}
	default:
		return &pullPattern{basePattern: base}
	}
}

// basePattern supplies permissive defaults and load-balanced routing.
type basePattern struct {
	s *Socket
}

func (basePattern) beforeSend(api.Message) error { return nil }
func (basePattern) afterSend(*envelope)          {}
func (basePattern) beforeRecv() error            { return nil }
func (basePattern) afterRecv(envelope)           {}
func (basePattern) sendReady() bool              { return true }
func (basePattern) recvReady() bool              { return false }

func (basePattern) deliver(*peer, api.Message) (bool, error) { return true, nil }

func (basePattern) detach(*peer, *api.ConnectionError) {}

func (b basePattern) route(env envelope) bool {
	_, ok := b.routeOne(env)
	return ok
}

// routeOne writes env to the next writable peer in round-robin order. Parts
// of a multi-part message stick to the peer that took the first part; if
// that peer is gone the remaining parts are dropped.
func (b basePattern) routeOne(env envelope) (*peer, bool) {
	s := b.s
	p := s.sticky
	if p != nil && p.closed {
		s.addDropped(1)
		if !env.msg.More {
			s.sticky = nil
		}
		return nil, true
	}
	if p == nil {
		p = s.nextPeer()
		if p == nil {
			return nil, false
		}
	} else if !p.writable() {
		return nil, false
	}
	if env.msg.More {
		s.sticky = p
	} else {
		s.sticky = nil
	}
	p.write(env.msg)
	return p, true
}

// nextPeer returns the next writable peer in round-robin order.
func (s *Socket) nextPeer() *peer {
	n := len(s.peers)
	for i := 0; i < n; i++ {
		idx := (s.rr + i) % n
		if p := s.peers[idx]; p.writable() {
			s.rr = (idx + 1) % n
			return p
		}
	}
	return nil
}
