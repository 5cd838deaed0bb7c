// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket core: queues, application-side Send/Recv and readiness.

package socket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/internal/transport"
	"github.com/momentics/hioload-mq/reactor"
)

// Counters receives aggregate counters; control.MetricsRegistry and
// adapters.ControlAdapter satisfy it.
type Counters interface {
	AddCounter(key string, delta int64)
}

// Deps wires a socket to the runtime owned by its Context.
type Deps struct {
	Reactor *reactor.Reactor
	Network *transport.Network
	// Dialer runs blocking dials off the reactor loop.
	Dialer  api.Executor
	Logger  zerolog.Logger
	Metrics Counters
	// OnClose runs once the socket is fully closed.
	OnClose func(*Socket)
}

type stats struct {
	sent, received, dropped, filtered, peerFailures uint64
}

// Socket is one messaging endpoint implementing a single pattern.
type Socket struct {
	id       string
	kind     api.Pattern
	cfg      Config
	deps     Deps
	r        *reactor.Reactor
	log      zerolog.Logger
	openedAt time.Time
	proto    pattern

	mu         sync.Mutex
	status     api.SocketStatus
	terminated bool
	in         msgQueue
	out        msgQueue
	changed    chan struct{}
	st         stats
	stalled    bool
	closeErr   error
	closedCh   chan struct{}

	peerCount  atomic.Int64
	pumpQueued atomic.Bool
	dialCtx    context.Context
	dialCancel context.CancelFunc

	// Owned by the reactor loop.
	peers       []*peer
	rr          int
	sticky      *peer
	parked      []*peer
	listeners   map[string]*boundListener
	connectors  map[string]*connector
	closing     bool
	finalized   bool
	lingerTimer *reactor.Timer
}

// New creates a socket of the given pattern on deps.Reactor.
func New(kind api.Pattern, deps Deps, opts ...Option) (*Socket, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("pattern %d: %w", kind, api.ErrInvalidArgument)
	}
	if deps.Reactor == nil || deps.Network == nil || deps.Dialer == nil {
		return nil, fmt.Errorf("socket deps incomplete: %w", api.ErrInvalidArgument)
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(kind); err != nil {
		return nil, err
	}

	s := &Socket{
		id:         uuid.NewString(),
		kind:       kind,
		cfg:        cfg,
		deps:       deps,
		r:          deps.Reactor,
		openedAt:   time.Now(),
		in:         newMsgQueue(),
		out:        newMsgQueue(),
		changed:    make(chan struct{}),
		closedCh:   make(chan struct{}),
		listeners:  make(map[string]*boundListener),
		connectors: make(map[string]*connector),
	}
	s.log = deps.Logger.With().Str("socket", s.id[:8]).Str("pattern", kind.String()).Logger()
	s.dialCtx, s.dialCancel = context.WithCancel(context.Background())
	s.proto = newPattern(kind, s)
	s.log.Debug().Int("reactor", s.r.ID()).Msg("socket opened")
	return s, nil
}

// ID returns the socket's unique identifier.
func (s *Socket) ID() string { return s.id }

// Pattern returns the messaging pattern.
func (s *Socket) Pattern() api.Pattern { return s.kind }

// Config returns the effective configuration.
func (s *Socket) Config() Config { return s.cfg }

// ReactorID returns the index of the owning reactor.
func (s *Socket) ReactorID() int { return s.r.ID() }

func (s *Socket) count(key string, delta int64) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.AddCounter(key, delta)
	}
}

// usableLocked reports why the socket refuses application calls. An open
// socket on a failed reactor reports the reactor's error.
func (s *Socket) usableLocked() error {
	if s.status == api.SocketOpen {
		return s.r.Err()
	}
	if s.terminated {
		return api.ErrTerminated
	}
	return api.ErrClosed
}

// notifyLocked wakes every goroutine waiting on queue state.
func (s *Socket) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// waitLocked releases the lock until queue state changes or ctx ends.
// It returns with the lock held only when the error is nil.
func (s *Socket) waitLocked(ctx context.Context) error {
	ch := s.changed
	s.mu.Unlock()
	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	select {
	case <-ch:
		s.mu.Lock()
		return nil
	case <-s.r.Done():
		if err := s.r.Err(); err != nil {
			return err
		}
		return api.ErrClosed
	case <-done:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return api.ErrTimedOut
		}
		return ctx.Err()
	}
}

// Send queues m. At the high-water mark it fails with api.ErrWouldBlock,
// blocks, or drops m, as selected by the overflow policy.
func (s *Socket) Send(m api.Message) error {
	return s.send(nil, m)
}

// SendContext queues m, waiting for space until ctx ends unless the socket
// drops on overflow. A ctx deadline yields api.ErrTimedOut.
func (s *Socket) SendContext(ctx context.Context, m api.Message) error {
	return s.send(ctx, m)
}

func (s *Socket) send(ctx context.Context, m api.Message) error {
	if !s.kind.CanSend() {
		return fmt.Errorf("%s socket cannot send: %w", s.kind, api.ErrNotSupported)
	}
	if uint64(m.Len()) > uint64(s.cfg.MaxFrameBytes) {
		return &api.FrameError{Declared: uint64(m.Len()), Limit: uint64(s.cfg.MaxFrameBytes)}
	}

	s.mu.Lock()
	for {
		if err := s.usableLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
		if err := s.proto.beforeSend(m); err != nil {
			s.mu.Unlock()
			return err
		}
		if s.out.len() < s.cfg.HighWaterMark {
			break
		}
		policy := s.cfg.overflow()
		if ctx != nil && policy != OverflowDrop {
			policy = OverflowBlock
		}
		switch policy {
		case OverflowDrop:
			s.st.dropped++
			s.mu.Unlock()
			s.count("messages.dropped", 1)
			return nil
		case OverflowFail:
			s.mu.Unlock()
			return api.ErrWouldBlock
		}
		if err := s.waitLocked(ctx); err != nil {
			return err
		}
	}
	env := envelope{msg: m}
	s.proto.afterSend(&env)
	s.out.push(env)
	s.st.sent++
	s.notifyLocked()
	s.mu.Unlock()

	s.kick()
	return nil
}

// Recv returns the next message. Non-blocking sockets return
// api.ErrWouldBlock when none is queued; blocking sockets wait.
func (s *Socket) Recv() (api.Message, error) {
	return s.recv(nil, s.cfg.Blocking)
}

// RecvContext waits for a message until ctx ends. A ctx deadline yields
// api.ErrTimedOut and leaves the socket untouched.
func (s *Socket) RecvContext(ctx context.Context) (api.Message, error) {
	return s.recv(ctx, true)
}

// RecvTimeout waits up to d for a message.
func (s *Socket) RecvTimeout(d time.Duration) (api.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.recv(ctx, true)
}

func (s *Socket) recv(ctx context.Context, wait bool) (api.Message, error) {
	if !s.kind.CanRecv() {
		return api.Message{}, fmt.Errorf("%s socket cannot receive: %w", s.kind, api.ErrNotSupported)
	}

	s.mu.Lock()
	for {
		if err := s.usableLocked(); err != nil {
			s.mu.Unlock()
			return api.Message{}, err
		}
		if err := s.proto.beforeRecv(); err != nil {
			s.notifyLocked()
			s.mu.Unlock()
			return api.Message{}, err
		}
		if env, ok := s.in.pop(); ok {
			s.proto.afterRecv(env)
			s.st.received++
			resume := s.stalled
			s.notifyLocked()
			s.mu.Unlock()
			if resume {
				_ = s.r.Post(s.resume)
			}
			return env.msg, nil
		}
		if !wait {
			s.mu.Unlock()
			return api.Message{}, api.ErrWouldBlock
		}
		if err := s.waitLocked(ctx); err != nil {
			return api.Message{}, err
		}
	}
}

// Events reports which operations would currently make progress.
func (s *Socket) Events() api.Events {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != api.SocketOpen {
		return api.EventError
	}
	var ev api.Events
	if s.kind.CanRecv() && (s.in.len() > 0 || s.proto.recvReady()) {
		ev |= api.EventRead
	}
	if s.kind.CanSend() && s.out.len() < s.cfg.HighWaterMark && s.proto.sendReady() {
		ev |= api.EventWrite
	}
	return ev
}

// Changed returns a channel closed at the next change of queue state or
// status. Callers re-check Events after it fires.
func (s *Socket) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Stats returns a snapshot of the socket counters.
func (s *Socket) Stats() api.SocketStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return api.SocketStats{
		Pattern:       s.kind,
		Status:        s.status,
		Peers:         int(s.peerCount.Load()),
		InboundDepth:  s.in.len(),
		OutboundDepth: s.out.len(),
		Sent:          s.st.sent,
		Received:      s.st.received,
		Dropped:       s.st.dropped,
		Filtered:      s.st.filtered,
		PeerFailures:  s.st.peerFailures,
		OpenedAt:      s.openedAt,
	}
}

// Subscribe adds a topic prefix filter. SUB sockets only; the empty prefix
// matches every message. Subscriptions are reference counted.
func (s *Socket) Subscribe(prefix []byte) error {
	sub, ok := s.proto.(*subPattern)
	if !ok {
		return fmt.Errorf("%s socket cannot subscribe: %w", s.kind, api.ErrNotSupported)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	sub.add(string(prefix))
	return nil
}

// Unsubscribe drops one reference to a prefix filter.
func (s *Socket) Unsubscribe(prefix []byte) error {
	sub, ok := s.proto.(*subPattern)
	if !ok {
		return fmt.Errorf("%s socket cannot unsubscribe: %w", s.kind, api.ErrNotSupported)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	return sub.remove(string(prefix))
}

// kick schedules an outbound pump on the reactor.
func (s *Socket) kick() {
	if s.pumpQueued.CompareAndSwap(false, true) {
		if err := s.r.Post(s.runPump); err != nil {
			s.pumpQueued.Store(false)
		}
	}
}

func (s *Socket) runPump() {
	s.pumpQueued.Store(false)
	s.pump()
}

// pump moves outbound messages to peers until the queue is empty or the
// pattern has to wait for a peer. Reactor loop only.
func (s *Socket) pump() {
	if s.finalized {
		return
	}
	moved := 0
	for {
		s.mu.Lock()
		env, ok := s.out.peek()
		s.mu.Unlock()
		if !ok || !s.proto.route(env) {
			break
		}
		s.mu.Lock()
		s.out.pop()
		s.mu.Unlock()
		moved++
	}
	if moved > 0 {
		s.mu.Lock()
		s.notifyLocked()
		s.mu.Unlock()
	}
	s.checkLinger()
}

// resume moves stashed inbound messages into freed queue space and
// re-enables reading on drained peers. Reactor loop only.
func (s *Socket) resume() {
	if s.finalized {
		return
	}
	var ready []*peer
	s.mu.Lock()
	moved := 0
	for len(s.parked) > 0 {
		p := s.parked[0]
		for len(p.stash) > 0 && s.in.len() < s.cfg.HighWaterMark {
			s.in.push(p.stash[0])
			p.stash[0] = envelope{}
			p.stash = p.stash[1:]
			moved++
		}
		if len(p.stash) > 0 {
			break
		}
		p.stash = nil
		s.parked[0] = nil
		s.parked = s.parked[1:]
		ready = append(ready, p)
	}
	s.stalled = len(s.parked) > 0
	if moved > 0 {
		s.notifyLocked()
	}
	s.mu.Unlock()

	for _, p := range ready {
		p.unpause()
	}
}

func (s *Socket) addDropped(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.st.dropped += uint64(n)
	s.mu.Unlock()
	s.count("messages.dropped", int64(n))
}
