//go:build !linux
// +build !linux

// File: internal/transport/socket_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// tcp and ipc outside Linux run through stream pumps.

package transport

import (
	"context"
	"net"

	"github.com/momentics/hioload-mq/api"
)

func netName(s Scheme) string {
	if s == SchemeIPC {
		return "unix"
	}
	return "tcp"
}

func listenSocket(ep Endpoint, bufferBytes int) (api.Listener, error) {
	ln, err := net.Listen(netName(ep.Scheme), ep.Address)
	if err != nil {
		return nil, err
	}
	addr := string(ep.Scheme) + "://" + ln.Addr().String()
	serve := func(push func(api.Handle)) error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			remote := string(ep.Scheme) + "://" + conn.RemoteAddr().String()
			push(newStreamConn(conn, remote, bufferBytes, nil))
		}
	}
	return newPumpListener(addr, serve, ln.Close), nil
}

func dialSocket(ctx context.Context, ep Endpoint, bufferBytes int) (api.Handle, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, netName(ep.Scheme), ep.Address)
	if err != nil {
		return nil, err
	}
	return newStreamConn(conn, ep.String(), bufferBytes, nil), nil
}
