// File: socket/pubsub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PUB broadcasts every message to all connected peers. Filtering happens on
// the SUB side by topic prefix.

package socket

import (
	"bytes"
	"fmt"

	"github.com/momentics/hioload-mq/api"
)

type pubPattern struct {
	basePattern
}

// route waits for every peer to have room unless the socket drops on
// overflow, in which case peers without room miss the message.
func (p *pubPattern) route(env envelope) bool {
	s := p.s
	drop := s.cfg.overflow() == OverflowDrop
	if !drop {
		for _, q := range s.peers {
			if !q.writable() {
				return false
			}
		}
	}
	peers := append([]*peer(nil), s.peers...)
	missed := 0
	for _, q := range peers {
		if q.writable() {
			q.write(env.msg)
		} else {
			missed++
		}
	}
	s.addDropped(missed)
	return true
}

func (*pubPattern) deliver(*peer, api.Message) (bool, error) { return false, nil }

type subPattern struct {
	basePattern
	subs map[string]int // guarded by Socket.mu
}

func (p *subPattern) add(prefix string) {
	p.subs[prefix]++
}

func (p *subPattern) remove(prefix string) error {
	n, ok := p.subs[prefix]
	if !ok {
		return fmt.Errorf("subscription %q: %w", prefix, api.ErrNotFound)
	}
	if n <= 1 {
		delete(p.subs, prefix)
	} else {
		p.subs[prefix] = n - 1
	}
	return nil
}

func (p *subPattern) matches(body []byte) bool {
	for prefix := range p.subs {
		if bytes.HasPrefix(body, []byte(prefix)) {
			return true
		}
	}
	return false
}

func (p *subPattern) deliver(_ *peer, m api.Message) (bool, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.matches(m.Bytes()) {
		return true, nil
	}
	s.st.filtered++
	return false, nil
}
