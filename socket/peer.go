// File: socket/peer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A peer is one established connection of a socket. Its handle, framer and
// registration are touched only by the socket's reactor loop.

package socket

import (
	"errors"

	"github.com/google/uuid"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/pool"
	"github.com/momentics/hioload-mq/protocol"
	"github.com/momentics/hioload-mq/reactor"
)

// maxReadsPerDispatch bounds the reads of one readiness event so a busy peer
// cannot starve the rest of the loop.
const maxReadsPerDispatch = 64

type peer struct {
	id     string
	s      *Socket
	h      api.Handle
	reg    *reactor.Registration
	framer *protocol.Framer
	remote string
	origin *connector

	stash  []envelope
	paused bool
	closed bool

	// REP: a request from this peer has not been answered yet.
	awaitingReply bool
}

// attach wraps h into a peer and starts watching it.
func (s *Socket) attach(h api.Handle, origin *connector) *peer {
	p := &peer{
		id:     uuid.NewString(),
		s:      s,
		h:      h,
		framer: protocol.NewFramer(s.cfg.MaxFrameBytes),
		remote: h.RemoteAddr(),
		origin: origin,
	}
	reg, err := s.r.Register(h, api.EventRead, p)
	if err != nil {
		_ = h.Close()
		s.log.Warn().Err(err).Str("endpoint", p.remote).Msg("peer registration failed")
		return nil
	}
	p.reg = reg
	s.peers = append(s.peers, p)
	s.peerCount.Add(1)
	s.count("peers.attached", 1)
	s.log.Debug().Str("peer", p.id).Str("endpoint", p.remote).Msg("peer attached")
	s.kick()
	return p
}

// HandleReady implements api.ReadyHandler.
func (p *peer) HandleReady(ev api.Events) {
	if p.closed {
		return
	}
	if ev.Has(api.EventWrite) {
		if !p.flush() {
			return
		}
		p.s.kick()
	}
	if ev&(api.EventRead|api.EventError) != 0 && !p.paused {
		p.readAvailable()
	}
}

func (p *peer) writable() bool {
	return !p.closed && p.framer.Buffered() < p.s.cfg.PeerBufferBytes
}

// write frames m and tries to put it on the wire.
func (p *peer) write(m api.Message) {
	if err := p.framer.PushOutbound(m); err != nil {
		p.s.log.Warn().Err(err).Str("peer", p.id).Msg("message not framed")
		p.s.addDropped(1)
		return
	}
	p.flush()
}

// flush writes staged bytes and reports whether the peer survived.
func (p *peer) flush() bool {
	err := p.framer.FlushTo(p.h)
	switch {
	case err == nil:
		p.setInterest(api.EventWrite, false)
	case errors.Is(err, api.ErrWouldBlock):
		p.setInterest(api.EventWrite, true)
	default:
		p.s.dropPeer(p, err)
		return false
	}
	return true
}

func (p *peer) readAvailable() {
	chunks := pool.Chunks()
	buf := chunks.Get()
	defer chunks.Put(buf)

	for i := 0; i < maxReadsPerDispatch; i++ {
		n, err := p.h.Read(buf)
		if n > 0 {
			msgs, ferr := p.framer.PullInbound(buf[:n])
			if derr := p.s.deliver(p, msgs); derr != nil {
				p.s.dropPeer(p, derr)
				return
			}
			if ferr != nil {
				p.s.dropPeer(p, ferr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, api.ErrWouldBlock) {
				p.s.dropPeer(p, err)
			}
			return
		}
		if p.paused || p.closed {
			return
		}
	}
	_ = p.s.r.Post(func() { p.HandleReady(api.EventRead) })
}

func (p *peer) setInterest(ev api.Events, on bool) {
	if p.reg == nil || p.closed {
		return
	}
	cur := p.reg.Interest()
	next := cur &^ ev
	if on {
		next = cur | ev
	}
	if err := p.reg.SetInterest(next); err != nil {
		p.s.log.Warn().Err(err).Str("peer", p.id).Msg("interest update failed")
	}
}

func (p *peer) pause() {
	if p.paused {
		return
	}
	p.paused = true
	p.setInterest(api.EventRead, false)
	p.s.parked = append(p.s.parked, p)
}

func (p *peer) unpause() {
	p.paused = false
	if !p.closed {
		p.setInterest(api.EventRead, true)
	}
}

// deliver runs inbound messages through the pattern and queues them,
// stashing whatever exceeds the high-water mark.
func (s *Socket) deliver(p *peer, msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	queued := false
	for _, m := range msgs {
		keep, err := s.proto.deliver(p, m)
		if err != nil {
			return err
		}
		if !keep {
			continue
		}
		env := envelope{msg: m, peer: p}
		if len(p.stash) > 0 {
			p.stash = append(p.stash, env)
			continue
		}
		s.mu.Lock()
		if s.in.len() < s.cfg.HighWaterMark {
			s.in.push(env)
			queued = true
		} else {
			p.stash = append(p.stash, env)
			s.stalled = true
		}
		s.mu.Unlock()
	}
	if queued {
		s.mu.Lock()
		s.notifyLocked()
		s.mu.Unlock()
	}
	if len(p.stash) > 0 {
		p.pause()
	}
	return nil
}

// dropPeer tears down a peer after a remote failure.
func (s *Socket) dropPeer(p *peer, cause error) {
	if p.closed {
		return
	}
	cerr := &api.ConnectionError{Endpoint: p.remote, PeerID: p.id, Err: cause}
	ev := s.log.Warn()
	if errors.Is(cause, api.ErrClosed) {
		ev = s.log.Debug()
	}
	ev.Err(cause).Str("peer", p.id).Str("endpoint", p.remote).Msg("peer disconnected")

	s.mu.Lock()
	s.st.peerFailures++
	s.mu.Unlock()
	s.count("peers.failed", 1)

	s.detach(p, cerr)
	if c := p.origin; c != nil && c.peer == p {
		c.peer = nil
		s.redial(c)
	}
}

// closePeer tears down a peer on local request.
func (s *Socket) closePeer(p *peer) {
	if p.closed {
		return
	}
	s.detach(p, &api.ConnectionError{Endpoint: p.remote, PeerID: p.id, Err: api.ErrClosed})
	if c := p.origin; c != nil && c.peer == p {
		c.peer = nil
	}
}

func (s *Socket) detach(p *peer, cerr *api.ConnectionError) {
	p.closed = true
	if p.reg != nil {
		_ = p.reg.Close()
	}
	_ = p.h.Close()
	p.framer.Reset()

	for i, q := range s.peers {
		if q == p {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			if s.rr > i {
				s.rr--
			}
			break
		}
	}
	if len(s.peers) == 0 || s.rr >= len(s.peers) {
		s.rr = 0
	}
	s.peerCount.Add(-1)
	s.proto.detach(p, cerr)
	s.kick()
}
