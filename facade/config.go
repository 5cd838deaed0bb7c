// File: facade/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Context configuration, defaults and TOML loading.

package facade

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-mq/internal/transport"
	"github.com/momentics/hioload-mq/reactor"
	"github.com/momentics/hioload-mq/socket"
)

// Config holds parameters fixed for the lifetime of a Context. Socket
// defaults can still be adjusted at runtime through the Control interface.
type Config struct {
	PoolSize          int           // Number of reactors
	PollTimeout       time.Duration // Upper bound of one blocking poll
	MailboxSize       int           // Task ring capacity per reactor
	PinReactors       bool          // Pin reactor i to CPU i modulo NumCPU
	DialWorkers       int           // Executor goroutines running dials
	DialTimeout       time.Duration // Bound of a single dial attempt
	InprocBufferBytes int           // Per-direction buffer of inproc and stream connections
	Socket            socket.Config // Defaults for new sockets
	Log               LogConfig
	TLS               *tls.Config     // Required for quic:// endpoints
	Logger            *zerolog.Logger // Overrides Log when set
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		PoolSize:          1,
		PollTimeout:       reactor.DefaultPollTimeout,
		MailboxSize:       reactor.DefaultMailboxSize,
		DialWorkers:       2,
		DialTimeout:       transport.DefaultDialTimeout,
		InprocBufferBytes: transport.DefaultInprocBufferBytes,
		Socket:            socket.DefaultConfig(),
		Log:               LogConfig{Level: "info", Format: "console"},
	}
}

type fileConfig struct {
	Context struct {
		PoolSize          int    `toml:"pool_size"`
		PollTimeout       string `toml:"poll_timeout"`
		MailboxSize       int    `toml:"mailbox_size"`
		PinReactors       bool   `toml:"pin_reactors"`
		DialWorkers       int    `toml:"dial_workers"`
		DialTimeout       string `toml:"dial_timeout"`
		InprocBufferBytes int    `toml:"inproc_buffer_bytes"`
	} `toml:"context"`
	Socket struct {
		HighWaterMark        int    `toml:"high_water_mark"`
		Linger               string `toml:"linger"`
		Blocking             bool   `toml:"blocking"`
		MaxFrameBytes        int    `toml:"max_frame_bytes"`
		Overflow             string `toml:"overflow"`
		ReconnectInterval    string `toml:"reconnect_interval"`
		ReconnectIntervalMax string `toml:"reconnect_interval_max"`
		PeerBufferBytes      int    `toml:"peer_buffer_bytes"`
	} `toml:"socket"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	TLS struct {
		CertFile           string `toml:"cert_file"`
		KeyFile            string `toml:"key_file"`
		ServerName         string `toml:"server_name"`
		InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	} `toml:"tls"`
}

// LoadConfig reads a TOML file on top of DefaultConfig. Keys absent from
// the file keep their defaults; durations use Go duration syntax.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	duration := func(key, value string, dst *time.Duration) error {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	if meta.IsDefined("context", "pool_size") {
		cfg.PoolSize = raw.Context.PoolSize
	}
	if meta.IsDefined("context", "poll_timeout") {
		if err := duration("context.poll_timeout", raw.Context.PollTimeout, &cfg.PollTimeout); err != nil {
			return nil, err
		}
	}
	if meta.IsDefined("context", "mailbox_size") {
		cfg.MailboxSize = raw.Context.MailboxSize
	}
	if meta.IsDefined("context", "pin_reactors") {
		cfg.PinReactors = raw.Context.PinReactors
	}
	if meta.IsDefined("context", "dial_workers") {
		cfg.DialWorkers = raw.Context.DialWorkers
	}
	if meta.IsDefined("context", "dial_timeout") {
		if err := duration("context.dial_timeout", raw.Context.DialTimeout, &cfg.DialTimeout); err != nil {
			return nil, err
		}
	}
	if meta.IsDefined("context", "inproc_buffer_bytes") {
		cfg.InprocBufferBytes = raw.Context.InprocBufferBytes
	}

	if meta.IsDefined("socket", "high_water_mark") {
		cfg.Socket.HighWaterMark = raw.Socket.HighWaterMark
	}
	if meta.IsDefined("socket", "linger") {
		if err := duration("socket.linger", raw.Socket.Linger, &cfg.Socket.Linger); err != nil {
			return nil, err
		}
	}
	if meta.IsDefined("socket", "blocking") {
		cfg.Socket.Blocking = raw.Socket.Blocking
	}
	if meta.IsDefined("socket", "max_frame_bytes") {
		cfg.Socket.MaxFrameBytes = raw.Socket.MaxFrameBytes
	}
	if meta.IsDefined("socket", "overflow") {
		o, err := socket.ParseOverflow(strings.TrimSpace(raw.Socket.Overflow))
		if err != nil {
			return nil, fmt.Errorf("parse socket.overflow: %w", err)
		}
		cfg.Socket.Overflow = o
	}
	if meta.IsDefined("socket", "reconnect_interval") {
		if err := duration("socket.reconnect_interval", raw.Socket.ReconnectInterval, &cfg.Socket.ReconnectInterval); err != nil {
			return nil, err
		}
	}
	if meta.IsDefined("socket", "reconnect_interval_max") {
		if err := duration("socket.reconnect_interval_max", raw.Socket.ReconnectIntervalMax, &cfg.Socket.ReconnectIntervalMax); err != nil {
			return nil, err
		}
	}
	if meta.IsDefined("socket", "peer_buffer_bytes") {
		cfg.Socket.PeerBufferBytes = raw.Socket.PeerBufferBytes
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = raw.Log.Format
	}

	if raw.TLS.CertFile != "" || raw.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(raw.TLS.CertFile, raw.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load tls key pair: %w", err)
		}
		cfg.TLS = &tls.Config{
			Certificates:       []tls.Certificate{cert},
			ServerName:         raw.TLS.ServerName,
			InsecureSkipVerify: raw.TLS.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS13,
		}
	}
	return cfg, nil
}
