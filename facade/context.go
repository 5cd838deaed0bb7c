// File: facade/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Context is the aggregate root of the library: it owns the reactor pool,
// the inproc endpoint namespace, the dial executor, the control plane and
// every socket created through it. There is no package-level default
// Context; callers construct one explicitly and Terminate it before exit.

package facade

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-mq/adapters"
	"github.com/momentics/hioload-mq/affinity"
	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/internal/concurrency"
	"github.com/momentics/hioload-mq/internal/transport"
	"github.com/momentics/hioload-mq/reactor"
	"github.com/momentics/hioload-mq/socket"
)

// Context owns reactors and sockets.
type Context struct {
	cfg      Config
	log      zerolog.Logger
	reactors []*reactor.Reactor
	network  *transport.Network
	dialer   *concurrency.Executor
	control  *adapters.ControlAdapter

	mu         sync.Mutex
	sockets    map[string]*socket.Socket
	next       int
	defaults   socket.Config
	terminated bool

	termOnce sync.Once
	termErr  error
	timeouts atomic.Int64
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Context)(nil)

// New constructs a Context and starts its reactors.
func New(cfg *Config) (*Context, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size %d: %w", cfg.PoolSize, api.ErrInvalidArgument)
	}

	c := &Context{
		cfg:      *cfg,
		sockets:  make(map[string]*socket.Socket),
		defaults: cfg.Socket,
		control:  adapters.NewControlAdapter(),
	}
	if cfg.Logger != nil {
		c.log = *cfg.Logger
	} else {
		c.log = NewLogger(cfg.Log)
	}

	c.network = transport.NewNetwork(transport.Config{
		BufferBytes: cfg.InprocBufferBytes,
		DialTimeout: cfg.DialTimeout,
		TLS:         cfg.TLS,
	})
	c.dialer = concurrency.NewExecutor(cfg.DialWorkers, 0)

	for i := 0; i < cfg.PoolSize; i++ {
		r, err := reactor.New(i, reactor.Config{
			PollTimeout: cfg.PollTimeout,
			MailboxSize: cfg.MailboxSize,
			Logger:      c.log,
			Pin:         cfg.PinReactors,
			CPU:         affinity.CPUFor(i),
		})
		if err != nil {
			for _, started := range c.reactors {
				started.Stop()
			}
			c.dialer.Close()
			return nil, fmt.Errorf("reactor %d init failure: %w", i, err)
		}
		c.reactors = append(c.reactors, r)
	}

	c.publishConfig()
	c.control.AddValidator(c.validateReload)
	c.control.OnReload(c.applyReload)
	c.control.RegisterDebugProbe("sockets", func() any { return c.socketSummaries() })
	c.control.RegisterDebugProbe("reactors", func() any { return c.reactorStats() })

	c.log.Debug().Int("pool_size", cfg.PoolSize).Msg("context started")
	return c, nil
}

// publishConfig exposes the tunables through Control for observability and
// runtime adjustment.
func (c *Context) publishConfig() {
	c.mu.Lock()
	d := c.defaults
	c.mu.Unlock()
	_ = c.control.SetConfig(map[string]any{
		"context.pool_size":             c.cfg.PoolSize,
		"context.poll_timeout":          c.cfg.PollTimeout.String(),
		"context.pin_reactors":          c.cfg.PinReactors,
		"socket.high_water_mark":        d.HighWaterMark,
		"socket.linger":                 d.Linger.String(),
		"socket.blocking":               d.Blocking,
		"socket.max_frame_bytes":        d.MaxFrameBytes,
		"socket.overflow":               d.Overflow.String(),
		"socket.peer_buffer_bytes":      d.PeerBufferBytes,
		"socket.reconnect_interval":     d.ReconnectInterval.String(),
		"socket.reconnect_interval_max": d.ReconnectIntervalMax.String(),
	})
}

// applyReload updates socket defaults from the control configuration.
// Sockets already open keep their settings.
func (c *Context) applyReload() {
	cfg := c.control.GetConfig()
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, err := overlaySocketConfig(c.defaults, cfg); err == nil {
		c.defaults = d
	}
}

// validateReload rejects control updates that would yield unusable
// socket defaults.
func (c *Context) validateReload(update map[string]any) error {
	c.mu.Lock()
	base := c.defaults
	c.mu.Unlock()
	_, err := overlaySocketConfig(base, update)
	return err
}

// overlaySocketConfig applies the socket.* keys of kv on top of base.
func overlaySocketConfig(base socket.Config, kv map[string]any) (socket.Config, error) {
	d := base
	bad := func(key string, v any) error {
		return api.WrapError(api.ErrCodeInvalidArgument, api.ErrInvalidArgument, "invalid control value").
			WithContext("key", key).
			WithContext("value", v)
	}
	positive := func(key string, dst *int) error {
		v, ok := kv[key]
		if !ok {
			return nil
		}
		n, ok := intValue(v)
		if !ok || n <= 0 {
			return bad(key, v)
		}
		*dst = n
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := kv[key]
		if !ok {
			return nil
		}
		dur, ok := durationValue(v)
		if !ok {
			return bad(key, v)
		}
		*dst = dur
		return nil
	}

	for _, err := range []error{
		positive("socket.high_water_mark", &d.HighWaterMark),
		positive("socket.max_frame_bytes", &d.MaxFrameBytes),
		positive("socket.peer_buffer_bytes", &d.PeerBufferBytes),
		duration("socket.linger", &d.Linger),
		duration("socket.reconnect_interval", &d.ReconnectInterval),
		duration("socket.reconnect_interval_max", &d.ReconnectIntervalMax),
	} {
		if err != nil {
			return base, err
		}
	}
	if v, ok := kv["socket.blocking"]; ok {
		b, ok := v.(bool)
		if !ok {
			return base, bad("socket.blocking", v)
		}
		d.Blocking = b
	}
	if v, ok := kv["socket.overflow"]; ok {
		str, _ := v.(string)
		o, err := socket.ParseOverflow(str)
		if err != nil {
			return base, bad("socket.overflow", v)
		}
		d.Overflow = o
	}
	return d, nil
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func durationValue(v any) (time.Duration, bool) {
	switch d := v.(type) {
	case time.Duration:
		return d, true
	case string:
		parsed, err := time.ParseDuration(d)
		return parsed, err == nil
	}
	return 0, false
}

// Socket creates a socket of the given pattern, assigning reactors
// round-robin. Options apply on top of the Context's socket defaults.
func (c *Context) Socket(kind api.Pattern, opts ...socket.Option) (*socket.Socket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return nil, api.ErrTerminated
	}
	r := c.reactors[c.next%len(c.reactors)]
	c.next++
	if err := r.Err(); err != nil {
		return nil, err
	}

	all := append([]socket.Option{socket.WithConfig(c.defaults)}, opts...)
	s, err := socket.New(kind, socket.Deps{
		Reactor: r,
		Network: c.network,
		Dialer:  c.dialer,
		Logger:  c.log,
		Metrics: c.control,
		OnClose: c.forget,
	}, all...)
	if err != nil {
		return nil, err
	}
	c.sockets[s.ID()] = s
	c.control.AddCounter("sockets.opened", 1)
	c.control.SetMetric("sockets.live", len(c.sockets))
	return s, nil
}

func (c *Context) forget(s *socket.Socket) {
	c.mu.Lock()
	delete(c.sockets, s.ID())
	live := len(c.sockets)
	c.mu.Unlock()
	c.control.AddCounter("sockets.closed", 1)
	c.control.SetMetric("sockets.live", live)
}

// Terminate rejects new calls on every socket, lets each socket flush for
// up to its linger period, closes all peers and stops the reactors. When a
// positive linger expired with messages left it returns an error wrapping
// api.ErrTerminateTimeout, reported once; the Context is still fully shut
// down. Failed reactors add their errors, which match
// api.ErrReactorFailed. Later calls return the same result.
func (c *Context) Terminate() error {
	c.termOnce.Do(func() {
		c.mu.Lock()
		c.terminated = true
		socks := make([]*socket.Socket, 0, len(c.sockets))
		for _, s := range c.sockets {
			socks = append(socks, s)
		}
		c.mu.Unlock()

		var g errgroup.Group
		for _, s := range socks {
			s := s
			g.Go(func() error {
				err := s.Terminate()
				switch {
				case errors.Is(err, api.ErrTerminateTimeout):
					c.timeouts.Add(1)
					return nil
				case errors.Is(err, api.ErrReactorFailed):
					// Reported once per reactor below.
					return nil
				}
				return err
			})
		}
		err := g.Wait()

		for _, r := range c.reactors {
			r.Stop()
		}
		c.dialer.Close()
		if rerr := c.Err(); rerr != nil {
			err = errors.Join(err, rerr)
		}

		if n := c.timeouts.Load(); n > 0 {
			timeoutErr := fmt.Errorf("%d of %d sockets dropped unsent messages: %w", n, len(socks), api.ErrTerminateTimeout)
			c.control.AddCounter("terminate.timeouts", 1)
			c.log.Warn().Err(timeoutErr).Msg("terminate")
			err = errors.Join(err, timeoutErr)
		}
		c.termErr = err
		c.log.Debug().Int("sockets", len(socks)).Msg("context terminated")
	})
	return c.termErr
}

// Err reports reactor failures. Sockets owned by a failed reactor return
// the same error from every call.
func (c *Context) Err() error {
	var errs []error
	for _, r := range c.reactors {
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown implements api.GracefulShutdown by delegating to Terminate.
func (c *Context) Shutdown() error {
	return c.Terminate()
}

// Terminated reports whether Terminate has begun.
func (c *Context) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Control returns the control plane for runtime config and metrics.
func (c *Context) Control() *adapters.ControlAdapter {
	return c.control
}

// Logger returns the Context logger.
func (c *Context) Logger() zerolog.Logger {
	return c.log
}

// NumSockets returns the number of open sockets.
func (c *Context) NumSockets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sockets)
}

// Stats merges control metrics with aggregate socket counters.
func (c *Context) Stats() map[string]any {
	stats := c.control.Stats()
	var sent, received, dropped uint64
	c.mu.Lock()
	open := len(c.sockets)
	for _, s := range c.sockets {
		st := s.Stats()
		sent += st.Sent
		received += st.Received
		dropped += st.Dropped
	}
	c.mu.Unlock()
	stats["sockets.open"] = open
	stats["messages.sent"] = sent
	stats["messages.received"] = received
	stats["messages.dropped.open"] = dropped
	return stats
}

// DumpState returns debug probe output.
func (c *Context) DumpState() map[string]any {
	return c.control.DumpState()
}

func (c *Context) socketSummaries() []map[string]any {
	c.mu.Lock()
	socks := make([]*socket.Socket, 0, len(c.sockets))
	for _, s := range c.sockets {
		socks = append(socks, s)
	}
	c.mu.Unlock()
	sort.Slice(socks, func(i, j int) bool { return socks[i].ID() < socks[j].ID() })

	out := make([]map[string]any, 0, len(socks))
	for _, s := range socks {
		st := s.Stats()
		out = append(out, map[string]any{
			"id":       s.ID(),
			"pattern":  st.Pattern.String(),
			"status":   st.Status.String(),
			"reactor":  s.ReactorID(),
			"peers":    st.Peers,
			"inbound":  st.InboundDepth,
			"outbound": st.OutboundDepth,
		})
	}
	return out
}

func (c *Context) reactorStats() []reactor.Stats {
	out := make([]reactor.Stats, 0, len(c.reactors))
	for _, r := range c.reactors {
		out = append(out, r.Stats())
	}
	return out
}
