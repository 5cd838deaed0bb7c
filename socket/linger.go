// File: socket/linger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Close sequence: stop accepting calls, flush for up to the linger period,
// then tear down every peer and endpoint.

package socket

import (
	"fmt"

	"github.com/momentics/hioload-mq/api"
)

// Close stops the socket. Queued outbound messages get up to the linger
// period to reach peers; Close blocks until they did or the period expired.
// It returns an error wrapping api.ErrTerminateTimeout when a positive
// linger expired with messages left. Further calls return nil.
func (s *Socket) Close() error {
	return s.shutdown(false)
}

// Terminate closes the socket on behalf of its Context. Application calls
// made afterwards fail with api.ErrTerminated.
func (s *Socket) Terminate() error {
	return s.shutdown(true)
}

func (s *Socket) shutdown(terminated bool) error {
	s.mu.Lock()
	if terminated {
		s.terminated = true
	}
	if s.status != api.SocketOpen {
		s.mu.Unlock()
		<-s.closedCh
		return nil
	}
	if err := s.r.Err(); err != nil {
		s.status = api.SocketClosing
		s.mu.Unlock()
		s.abandon(err)
		return err
	}
	s.status = api.SocketClosing
	s.notifyLocked()
	s.mu.Unlock()

	if err := s.r.Post(s.beginClose); err != nil {
		// The loop is exiting; once it is gone this goroutine owns its state.
		<-s.r.Done()
	}
	select {
	case <-s.closedCh:
	case <-s.r.Done():
		if err := s.r.Err(); err != nil {
			s.abandon(err)
			return err
		}
		// The loop exited while lingering; finish here.
		s.finalize(nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// abandon finalizes a socket whose reactor failed. The loop has exited, so
// the calling goroutine owns the loop state.
func (s *Socket) abandon(cause error) {
	<-s.r.Done()
	s.finalize(nil)
	s.log.Warn().Err(cause).Msg("socket closed after reactor failure")
}

// Done is closed once the socket is fully closed.
func (s *Socket) Done() <-chan struct{} { return s.closedCh }

func (s *Socket) beginClose() {
	if s.closing {
		return
	}
	s.closing = true
	for _, b := range s.listeners {
		s.closeListener(b)
	}
	if s.cfg.Linger == 0 {
		s.finalize(nil)
		return
	}
	if s.cfg.Linger > 0 {
		s.lingerTimer = s.r.AfterFunc(s.cfg.Linger, s.lingerExpired)
	}
	s.log.Debug().Dur("linger", s.cfg.Linger).Msg("socket lingering")
	s.pump()
}

// drained reports whether nothing is left to flush.
func (s *Socket) drained() bool {
	s.mu.Lock()
	queued := s.out.len()
	s.mu.Unlock()
	if queued > 0 {
		return false
	}
	for _, p := range s.peers {
		if p.framer.Buffered() > 0 {
			return false
		}
	}
	return true
}

func (s *Socket) checkLinger() {
	if s.closing && !s.finalized && s.drained() {
		s.finalize(nil)
	}
}

func (s *Socket) lingerExpired() {
	s.lingerTimer = nil
	if s.finalized {
		return
	}
	s.mu.Lock()
	queued := s.out.len()
	s.mu.Unlock()
	staged := 0
	for _, p := range s.peers {
		staged += p.framer.Buffered()
	}
	s.finalize(fmt.Errorf("socket %s: %d messages and %d staged bytes unsent after %s: %w",
		s.id, queued, staged, s.cfg.Linger, api.ErrTerminateTimeout))
}

// finalize releases every resource. It runs exactly once, on the reactor
// loop or, when the loop has already stopped, on the closing goroutine.
func (s *Socket) finalize(err error) {
	if s.finalized {
		return
	}
	s.finalized = true
	s.closing = true
	s.dialCancel()

	loopAlive := true
	select {
	case <-s.r.Done():
		loopAlive = false
	default:
	}
	if loopAlive && s.lingerTimer != nil {
		s.r.StopTimer(s.lingerTimer)
	}
	s.lingerTimer = nil

	for _, c := range s.connectors {
		c.removed = true
		if loopAlive {
			s.r.StopTimer(c.timer)
		}
		c.timer = nil
	}
	for _, b := range s.listeners {
		s.closeListener(b)
	}
	for len(s.peers) > 0 {
		s.closePeer(s.peers[0])
	}
	s.parked = nil
	s.sticky = nil

	s.mu.Lock()
	// Unread inbound messages are lost as well as unsent ones.
	dropped := s.out.clear() + s.in.clear()
	s.st.dropped += uint64(dropped)
	s.status = api.SocketClosed
	s.closeErr = err
	s.notifyLocked()
	s.mu.Unlock()

	if dropped > 0 {
		s.count("messages.dropped", int64(dropped))
	}
	if err != nil {
		s.log.Debug().Err(err).Msg("socket closed with unsent messages")
	} else {
		s.log.Debug().Int("discarded", dropped).Msg("socket closed")
	}
	close(s.closedCh)
	if s.deps.OnClose != nil {
		s.deps.OnClose(s)
	}
}
