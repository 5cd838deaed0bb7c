// File: socket/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket configuration and functional options.

package socket

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/protocol"
)

// Overflow selects what Send does when the outbound queue is at its
// high-water mark.
type Overflow int

const (
	// OverflowDefault resolves to OverflowBlock for blocking sockets and
	// OverflowFail otherwise.
	OverflowDefault Overflow = iota
	// OverflowFail returns api.ErrWouldBlock.
	OverflowFail
	// OverflowBlock waits for space.
	OverflowBlock
	// OverflowDrop discards the new message and counts it in Stats.Dropped.
	OverflowDrop
)

func (o Overflow) String() string {
	switch o {
	case OverflowDefault:
		return "default"
	case OverflowFail:
		return "fail"
	case OverflowBlock:
		return "block"
	case OverflowDrop:
		return "drop"
	}
	return "unknown"
}

// ParseOverflow maps a configuration string onto an Overflow policy.
func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "", "default":
		return OverflowDefault, nil
	case "fail":
		return OverflowFail, nil
	case "block":
		return OverflowBlock, nil
	case "drop":
		return OverflowDrop, nil
	}
	return OverflowDefault, fmt.Errorf("overflow policy %q: %w", s, api.ErrInvalidArgument)
}

const (
	DefaultHighWaterMark        = 1000
	DefaultLinger               = 0
	DefaultPeerBufferBytes      = 64 << 10
	DefaultReconnectInterval    = 100 * time.Millisecond
	DefaultReconnectIntervalMax = 5 * time.Second
)

// Config holds per-socket settings fixed at creation.
type Config struct {
	// HighWaterMark bounds the inbound and the outbound queue, in messages.
	HighWaterMark int
	// Linger is how long Close waits for queued messages to flush. Zero
	// discards them immediately; a negative value waits indefinitely.
	Linger time.Duration
	// Blocking makes Recv wait for a message and selects OverflowBlock
	// as the default overflow policy.
	Blocking bool
	// MaxFrameBytes bounds a single message on the wire in both directions.
	MaxFrameBytes int
	Overflow      Overflow
	// ReconnectInterval is the first delay before re-dialing a lost or
	// failed connect endpoint. A negative value disables reconnection.
	ReconnectInterval    time.Duration
	ReconnectIntervalMax time.Duration
	// PeerBufferBytes bounds the encoded bytes staged for one peer before
	// the peer stops taking messages from the outbound queue.
	PeerBufferBytes int
}

// DefaultConfig returns the settings used when no option overrides them.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:        DefaultHighWaterMark,
		Linger:               DefaultLinger,
		MaxFrameBytes:        protocol.DefaultMaxFrameBytes,
		ReconnectInterval:    DefaultReconnectInterval,
		ReconnectIntervalMax: DefaultReconnectIntervalMax,
		PeerBufferBytes:      DefaultPeerBufferBytes,
	}
}

// overflow resolves OverflowDefault.
func (c Config) overflow() Overflow {
	if c.Overflow != OverflowDefault {
		return c.Overflow
	}
	if c.Blocking {
		return OverflowBlock
	}
	return OverflowFail
}

func (c Config) validate(p api.Pattern) error {
	invalid := func(msg, key string, value any) error {
		return api.WrapError(api.ErrCodeInvalidArgument, api.ErrInvalidArgument, msg).
			WithContext(key, value).
			WithContext("pattern", p.String())
	}
	if c.HighWaterMark <= 0 {
		return invalid("high-water mark must be positive", "high_water_mark", c.HighWaterMark)
	}
	if c.MaxFrameBytes <= 0 || uint64(c.MaxFrameBytes) > protocol.MaxEncodableFrameBytes {
		return invalid("max frame bytes out of range", "max_frame_bytes", c.MaxFrameBytes)
	}
	if c.PeerBufferBytes <= 0 {
		return invalid("peer buffer bytes must be positive", "peer_buffer_bytes", c.PeerBufferBytes)
	}
	if c.Overflow < OverflowDefault || c.Overflow > OverflowDrop {
		return invalid("unknown overflow policy", "overflow", int(c.Overflow))
	}
	if c.Overflow == OverflowDrop && (p == api.PatternReq || p == api.PatternRep) {
		return invalid("request/reply sockets cannot drop on overflow", "overflow", c.Overflow.String())
	}
	return nil
}

// Option customizes socket creation.
type Option func(*Config)

// WithConfig replaces the whole configuration. Later options still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithHighWaterMark sets the queue depth in messages.
func WithHighWaterMark(n int) Option {
	return func(c *Config) {
		c.HighWaterMark = n
	}
}

// WithLinger sets the close-time flush window.
func WithLinger(d time.Duration) Option {
	return func(c *Config) {
		c.Linger = d
	}
}

// WithBlocking toggles blocking Send/Recv.
func WithBlocking(on bool) Option {
	return func(c *Config) {
		c.Blocking = on
	}
}

// WithMaxFrameBytes bounds single messages.
func WithMaxFrameBytes(n int) Option {
	return func(c *Config) {
		c.MaxFrameBytes = n
	}
}

// WithOverflow selects the high-water-mark policy.
func WithOverflow(o Overflow) Option {
	return func(c *Config) {
		c.Overflow = o
	}
}

// WithReconnect sets the reconnect backoff window.
func WithReconnect(initial, max time.Duration) Option {
	return func(c *Config) {
		c.ReconnectInterval = initial
		c.ReconnectIntervalMax = max
	}
}

// WithPeerBufferBytes bounds bytes staged per peer.
func WithPeerBufferBytes(n int) Option {
	return func(c *Config) {
		c.PeerBufferBytes = n
	}
}
