// File: internal/transport/quic.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// quic:// endpoints carry one bidirectional stream per connection. The dialer
// writes a single preamble byte so the stream becomes visible to the
// listener before any application frame is sent.

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	quic "github.com/quic-go/quic-go"

	"github.com/momentics/hioload-mq/api"
)

// ALPN is the application protocol negotiated on quic:// endpoints.
const ALPN = "hioload-mq"

const streamPreamble = 0x01

func quicTLS(cfg *tls.Config) *tls.Config {
	c := cfg.Clone()
	if len(c.NextProtos) == 0 {
		c.NextProtos = []string{ALPN}
	}
	return c
}

func listenQUIC(ep Endpoint, tlsConf *tls.Config, bufferBytes int) (api.Listener, error) {
	ln, err := quic.ListenAddr(ep.Address, quicTLS(tlsConf), nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	addr := string(SchemeQUIC) + "://" + ln.Addr().String()

	serve := func(push func(api.Handle)) error {
		for {
			conn, err := ln.Accept(ctx)
			if err != nil {
				return err
			}
			go func(conn *quic.Conn) {
				stream, err := conn.AcceptStream(ctx)
				if err != nil {
					_ = conn.CloseWithError(0, "")
					return
				}
				var pre [1]byte
				if _, err := io.ReadFull(stream, pre[:]); err != nil || pre[0] != streamPreamble {
					_ = conn.CloseWithError(1, "bad preamble")
					return
				}
				remote := string(SchemeQUIC) + "://" + conn.RemoteAddr().String()
				push(newStreamConn(stream, remote, bufferBytes, func() {
					_ = conn.CloseWithError(0, "")
				}))
			}(conn)
		}
	}
	closeFn := func() error {
		cancel()
		return ln.Close()
	}
	return newPumpListener(addr, serve, closeFn), nil
}

func dialQUIC(ctx context.Context, ep Endpoint, tlsConf *tls.Config, bufferBytes int) (api.Handle, error) {
	conn, err := quic.DialAddr(ctx, ep.Address, quicTLS(tlsConf), nil)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if _, err := stream.Write([]byte{streamPreamble}); err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("write preamble: %w", err)
	}
	return newStreamConn(stream, ep.String(), bufferBytes, func() {
		_ = conn.CloseWithError(0, "")
	}), nil
}
