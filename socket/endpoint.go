// File: socket/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bind, Connect and their reverse operations. Dials run on the Dialer
// executor; failed or lost connect endpoints are re-dialed with exponential
// backoff on reactor timers.

package socket

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/internal/transport"
	"github.com/momentics/hioload-mq/reactor"
)

type boundListener struct {
	s        *Socket
	endpoint string
	l        api.Listener
	reg      *reactor.Registration
}

// HandleReady accepts every pending connection.
func (b *boundListener) HandleReady(api.Events) {
	for {
		h, err := b.l.Accept()
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return
			}
			if !errors.Is(err, api.ErrClosed) {
				b.s.log.Warn().Err(err).Str("endpoint", b.endpoint).Msg("accept failed")
			}
			b.s.closeListener(b)
			return
		}
		b.s.attach(h, nil)
	}
}

type connector struct {
	ep      transport.Endpoint
	backoff *backoff.ExponentialBackOff
	peer    *peer
	timer   *reactor.Timer
	dialing bool
	removed bool
}

func (s *Socket) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.ReconnectInterval
	if b.InitialInterval == 0 {
		b.InitialInterval = DefaultReconnectInterval
	}
	b.MaxInterval = s.cfg.ReconnectIntervalMax
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (s *Socket) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usableLocked()
}

// Bind listens on endpoint and returns the resolved endpoint, e.g. with the
// port chosen by the kernel for tcp://host:0.
func (s *Socket) Bind(endpoint string) (string, error) {
	ep, err := transport.ParseEndpoint(endpoint)
	if err != nil {
		return "", err
	}
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	l, err := s.deps.Network.Listen(ep)
	if err != nil {
		return "", err
	}

	var regErr error
	if err := s.r.Do(func() {
		if s.closing {
			regErr = api.ErrClosed
			return
		}
		b := &boundListener{s: s, endpoint: l.Addr(), l: l}
		b.reg, regErr = s.r.Register(l, api.EventRead, b)
		if regErr == nil {
			s.listeners[b.endpoint] = b
		}
	}); err != nil {
		regErr = err
	}
	if regErr != nil {
		_ = l.Close()
		return "", regErr
	}
	s.log.Debug().Str("endpoint", l.Addr()).Msg("bound")
	return l.Addr(), nil
}

// Unbind stops listening on an endpoint returned by Bind. Connections
// already accepted stay attached.
func (s *Socket) Unbind(endpoint string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	var found bool
	if err := s.r.Do(func() {
		if b, ok := s.listeners[endpoint]; ok {
			found = true
			s.closeListener(b)
		}
	}); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("unbind %s: %w", endpoint, api.ErrNotFound)
	}
	return nil
}

func (s *Socket) closeListener(b *boundListener) {
	if s.listeners[b.endpoint] != b {
		return
	}
	delete(s.listeners, b.endpoint)
	if b.reg != nil {
		_ = b.reg.Close()
	}
	_ = b.l.Close()
}

// Connect starts connecting to endpoint and returns without waiting for
// the connection. Failed dials and lost connections are retried until
// Disconnect or Close.
func (s *Socket) Connect(endpoint string) error {
	ep, err := transport.ParseEndpoint(endpoint)
	if err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	key := ep.String()
	var dupErr error
	if err := s.r.Do(func() {
		if s.closing {
			dupErr = api.ErrClosed
			return
		}
		if _, ok := s.connectors[key]; ok {
			dupErr = fmt.Errorf("connect %s: %w", key, api.ErrAlreadyExists)
			return
		}
		c := &connector{ep: ep, backoff: s.newBackoff()}
		s.connectors[key] = c
		s.dial(c)
	}); err != nil {
		return err
	}
	return dupErr
}

// Disconnect stops reconnecting to endpoint and closes its connection.
func (s *Socket) Disconnect(endpoint string) error {
	ep, err := transport.ParseEndpoint(endpoint)
	if err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	var found bool
	if err := s.r.Do(func() {
		c, ok := s.connectors[ep.String()]
		if !ok {
			return
		}
		found = true
		s.removeConnector(c)
	}); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("disconnect %s: %w", ep, api.ErrNotFound)
	}
	return nil
}

func (s *Socket) removeConnector(c *connector) {
	c.removed = true
	delete(s.connectors, c.ep.String())
	s.r.StopTimer(c.timer)
	c.timer = nil
	if c.peer != nil {
		s.closePeer(c.peer)
	}
}

// dial runs one attempt on the Dialer. Reactor loop only.
func (s *Socket) dial(c *connector) {
	c.dialing = true
	ctx := s.dialCtx
	network := s.deps.Network
	err := s.deps.Dialer.Submit(func() {
		h, err := network.Dial(ctx, c.ep)
		if perr := s.r.Post(func() { s.dialed(c, h, err) }); perr != nil && h != nil {
			_ = h.Close()
		}
	})
	if err != nil {
		c.dialing = false
		s.log.Warn().Err(err).Str("endpoint", c.ep.String()).Msg("dial not scheduled")
		s.redial(c)
	}
}

func (s *Socket) dialed(c *connector, h api.Handle, err error) {
	c.dialing = false
	if c.removed || s.finalized {
		if h != nil {
			_ = h.Close()
		}
		return
	}
	if err != nil {
		s.log.Debug().Err(err).Str("endpoint", c.ep.String()).Msg("dial failed")
		s.redial(c)
		return
	}
	c.backoff.Reset()
	c.peer = s.attach(h, c)
	if c.peer == nil {
		s.redial(c)
	}
}

// redial arms the reconnect timer of c.
func (s *Socket) redial(c *connector) {
	if c.removed || s.finalized || c.dialing || c.timer != nil || s.cfg.ReconnectInterval < 0 {
		return
	}
	d := c.backoff.NextBackOff()
	if d == backoff.Stop {
		d = s.cfg.ReconnectIntervalMax
	}
	c.timer = s.r.AfterFunc(d, func() {
		c.timer = nil
		if !c.removed && !s.finalized {
			s.dial(c)
		}
	})
}
