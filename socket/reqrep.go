// File: socket/reqrep.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// REQ and REP enforce strict request/reply alternation.
//
// REQ: Idle -> AwaitingReply on send, back to Idle when the reply is
// received or the peer holding the request disconnects; in the latter case
// the next Recv reports the *api.ConnectionError once.
// REP: each peer may have one unanswered request; a second one resets the
// connection. Replies go to the peer of the last received request.
//
// Frames carry no continuation flag, so a REP could not tell the parts of
// one request from two requests. Both sides refuse multi-part messages.

package socket

import (
	"fmt"

	"github.com/momentics/hioload-mq/api"
)

type reqState int

const (
	reqIdle reqState = iota
	reqAwaiting
)

func singlePart(m api.Message) error {
	if m.More {
		return fmt.Errorf("multi-part request/reply: %w", api.ErrNotSupported)
	}
	return nil
}

type reqPattern struct {
	basePattern

	// guarded by Socket.mu
	state   reqState
	pending *api.ConnectionError

	// reactor-owned
	awaiting *peer
}

func (p *reqPattern) beforeSend(m api.Message) error {
	if p.state == reqAwaiting {
		return fmt.Errorf("request already awaiting reply: %w", api.ErrProtocolViolation)
	}
	return singlePart(m)
}

func (p *reqPattern) afterSend(*envelope) {
	p.state = reqAwaiting
	p.pending = nil
}

func (p *reqPattern) beforeRecv() error {
	if p.pending != nil {
		err := p.pending
		p.pending = nil
		return err
	}
	if p.state != reqAwaiting {
		return fmt.Errorf("no request to receive a reply for: %w", api.ErrProtocolViolation)
	}
	return nil
}

func (p *reqPattern) afterRecv(envelope) {
	p.state = reqIdle
}

func (p *reqPattern) sendReady() bool { return p.state != reqAwaiting }
func (p *reqPattern) recvReady() bool { return p.pending != nil }

func (p *reqPattern) route(env envelope) bool {
	q, ok := p.routeOne(env)
	if q != nil {
		p.awaiting = q
	}
	return ok
}

// deliver accepts only the reply from the peer holding the request.
func (p *reqPattern) deliver(q *peer, _ api.Message) (bool, error) {
	if q != p.awaiting {
		p.s.addDropped(1)
		return false, nil
	}
	p.awaiting = nil
	return true, nil
}

func (p *reqPattern) detach(q *peer, cerr *api.ConnectionError) {
	if q != p.awaiting {
		return
	}
	p.awaiting = nil
	s := p.s
	s.mu.Lock()
	if p.state == reqAwaiting {
		p.state = reqIdle
		p.pending = cerr
		s.notifyLocked()
	}
	s.mu.Unlock()
}

type repPattern struct {
	basePattern

	// guarded by Socket.mu
	replying bool
	replyTo  *peer
}

func (p *repPattern) beforeSend(m api.Message) error {
	if !p.replying {
		return fmt.Errorf("no request to reply to: %w", api.ErrProtocolViolation)
	}
	return singlePart(m)
}

func (p *repPattern) afterSend(env *envelope) {
	env.peer = p.replyTo
	p.replying = false
	p.replyTo = nil
}

func (p *repPattern) beforeRecv() error {
	if p.replying {
		return fmt.Errorf("previous request not answered: %w", api.ErrProtocolViolation)
	}
	return nil
}

func (p *repPattern) afterRecv(env envelope) {
	p.replying = true
	p.replyTo = env.peer
}

func (p *repPattern) sendReady() bool { return p.replying }

// route sends the reply back to the requesting peer, dropping it when that
// peer has gone away.
func (p *repPattern) route(env envelope) bool {
	q := env.peer
	if q == nil || q.closed {
		p.s.addDropped(1)
		return true
	}
	if !q.writable() {
		return false
	}
	q.write(env.msg)
	q.awaitingReply = false
	return true
}

func (p *repPattern) deliver(q *peer, _ api.Message) (bool, error) {
	if q.awaitingReply {
		return false, fmt.Errorf("second request before reply: %w", api.ErrProtocolViolation)
	}
	q.awaitingReply = true
	return true, nil
}
