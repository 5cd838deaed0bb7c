// File: socket/queue.go
// Author: momentics <momentics@gmail.com>

package socket

import (
	"github.com/eapache/queue"

	"github.com/momentics/hioload-mq/api"
)

// envelope is a queued message plus the peer it came from or must go to.
type envelope struct {
	msg  api.Message
	peer *peer
}

// msgQueue is a FIFO of envelopes on top of a growable ring.
type msgQueue struct {
	q *queue.Queue
}

func newMsgQueue() msgQueue {
	return msgQueue{q: queue.New()}
}

func (m msgQueue) push(e envelope) {
	m.q.Add(e)
}

func (m msgQueue) peek() (envelope, bool) {
	if m.q.Length() == 0 {
		return envelope{}, false
	}
	return m.q.Peek().(envelope), true
}

func (m msgQueue) pop() (envelope, bool) {
	if m.q.Length() == 0 {
		return envelope{}, false
	}
	return m.q.Remove().(envelope), true
}

func (m msgQueue) len() int {
	return m.q.Length()
}

// clear empties the queue and returns how many envelopes were discarded.
func (m msgQueue) clear() int {
	n := m.q.Length()
	for m.q.Length() > 0 {
		m.q.Remove()
	}
	return n
}
