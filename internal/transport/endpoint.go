// File: internal/transport/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"
	"net"
	"strings"

	"github.com/momentics/hioload-mq/api"
)

// Scheme names a transport family.
type Scheme string

const (
	SchemeTCP    Scheme = "tcp"
	SchemeIPC    Scheme = "ipc"
	SchemeInproc Scheme = "inproc"
	SchemeQUIC   Scheme = "quic"
)

// Endpoint is a parsed endpoint URI.
type Endpoint struct {
	Scheme  Scheme
	Address string
}

// String returns the URI form.
func (e Endpoint) String() string {
	return string(e.Scheme) + "://" + e.Address
}

// ParseEndpoint validates and splits an endpoint URI.
func ParseEndpoint(uri string) (Endpoint, error) {
	scheme, addr, ok := strings.Cut(uri, "://")
	if !ok {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing scheme: %w", uri, api.ErrInvalidArgument)
	}
	ep := Endpoint{Scheme: Scheme(strings.ToLower(scheme)), Address: addr}
	switch ep.Scheme {
	case SchemeTCP, SchemeQUIC:
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint %q: %v: %w", uri, err, api.ErrInvalidArgument)
		}
		if port == "" {
			return Endpoint{}, fmt.Errorf("endpoint %q: missing port: %w", uri, api.ErrInvalidArgument)
		}
		if host == "*" {
			ep.Address = net.JoinHostPort("", port)
		}
	case SchemeIPC, SchemeInproc:
		if addr == "" {
			return Endpoint{}, fmt.Errorf("endpoint %q: empty name: %w", uri, api.ErrInvalidArgument)
		}
	default:
		return Endpoint{}, fmt.Errorf("endpoint %q: unknown transport %q: %w", uri, scheme, api.ErrNotSupported)
	}
	return ep, nil
}
