// File: internal/transport/network.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/momentics/hioload-mq/api"
)

// DefaultDialTimeout bounds a single dial attempt.
const DefaultDialTimeout = 5 * time.Second

// Config holds transport-wide settings owned by a Context.
type Config struct {
	// BufferBytes bounds each direction of inproc pipes and stream pumps.
	BufferBytes int
	DialTimeout time.Duration
	// TLS is required for quic:// endpoints.
	TLS *tls.Config
}

// Network dispatches Listen and Dial by endpoint scheme.
type Network struct {
	cfg    Config
	inproc *InprocRegistry
}

// NewNetwork returns a Network with its own inproc namespace.
func NewNetwork(cfg Config) *Network {
	if cfg.BufferBytes <= 0 {
		cfg.BufferBytes = DefaultInprocBufferBytes
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &Network{cfg: cfg, inproc: NewInprocRegistry(cfg.BufferBytes)}
}

// Inproc returns the in-memory endpoint registry.
func (n *Network) Inproc() *InprocRegistry { return n.inproc }

// Listen binds ep.
func (n *Network) Listen(ep Endpoint) (api.Listener, error) {
	switch ep.Scheme {
	case SchemeInproc:
		return n.inproc.Listen(ep.Address)
	case SchemeTCP, SchemeIPC:
		l, err := listenSocket(ep, n.cfg.BufferBytes)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", ep, err)
		}
		return l, nil
	case SchemeQUIC:
		if n.cfg.TLS == nil {
			return nil, fmt.Errorf("listen %s: tls config required: %w", ep, api.ErrInvalidArgument)
		}
		l, err := listenQUIC(ep, n.cfg.TLS, n.cfg.BufferBytes)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", ep, err)
		}
		return l, nil
	}
	return nil, fmt.Errorf("listen %s: %w", ep, api.ErrNotSupported)
}

// Dial opens one connection to ep. It may block up to DialTimeout and must
// not be called from a reactor goroutine. Failures are *api.ConnectionError.
func (n *Network) Dial(ctx context.Context, ep Endpoint) (api.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()

	var (
		h   api.Handle
		err error
	)
	switch ep.Scheme {
	case SchemeInproc:
		h, err = n.inproc.Dial(ep.Address)
	case SchemeTCP, SchemeIPC:
		h, err = dialSocket(ctx, ep, n.cfg.BufferBytes)
	case SchemeQUIC:
		if n.cfg.TLS == nil {
			err = fmt.Errorf("tls config required: %w", api.ErrInvalidArgument)
			break
		}
		h, err = dialQUIC(ctx, ep, n.cfg.TLS, n.cfg.BufferBytes)
	default:
		err = api.ErrNotSupported
	}
	if err != nil {
		return nil, &api.ConnectionError{Endpoint: ep.String(), Err: err}
	}
	return h, nil
}
