//go:build !linux
// +build !linux

// File: reactor/poller_other.go
// Author: momentics <momentics@gmail.com>
//
// Without epoll every transport signals readiness in software, so the
// poller only has to sleep until woken or timed out.

package reactor

import (
	"time"

	"github.com/momentics/hioload-mq/api"
)

type chanPoller struct {
	wakeCh chan struct{}
}

func newPoller() (poller, error) {
	return &chanPoller{wakeCh: make(chan struct{}, 1)}, nil
}

func (p *chanPoller) add(int, api.Events) error    { return api.ErrNotSupported }
func (p *chanPoller) modify(int, api.Events) error { return api.ErrNotSupported }
func (p *chanPoller) remove(int) error             { return api.ErrNotSupported }

func (p *chanPoller) wait(timeout time.Duration, _ func(int, api.Events)) error {
	if timeout == 0 {
		select {
		case <-p.wakeCh:
		default:
		}
		return nil
	}
	if timeout < 0 {
		<-p.wakeCh
		return nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.wakeCh:
	case <-t.C:
	}
	return nil
}

func (p *chanPoller) wake() error {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

func (p *chanPoller) close() error { return nil }
