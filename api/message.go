// File: api/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message is the unit every socket pattern moves between queues.

package api

// Message is an immutable byte sequence with an optional multi-part flag.
// Messages are copied when they cross a queue boundary; Body never aliases
// caller memory.
type Message struct {
	body []byte
	More bool
}

// NewMessage copies b into a new Message.
func NewMessage(b []byte) Message {
	body := make([]byte, len(b))
	copy(body, b)
	return Message{body: body}
}

// NewMessageString builds a Message from s.
func NewMessageString(s string) Message {
	return Message{body: []byte(s)}
}

// NewPart builds a Message marked as a non-final part of a multi-part message.
func NewPart(b []byte) Message {
	m := NewMessage(b)
	m.More = true
	return m
}

// AdoptMessage wraps a freshly allocated buffer the caller hands over
// without copying. The caller must not retain b.
func AdoptMessage(b []byte) Message {
	return Message{body: b}
}

// Body returns a copy of the message bytes.
func (m Message) Body() []byte {
	out := make([]byte, len(m.body))
	copy(out, m.body)
	return out
}

// Bytes returns the message bytes without copying. Callers must treat the
// slice as read-only.
func (m Message) Bytes() []byte {
	return m.body
}

// Len returns the payload length.
func (m Message) Len() int {
	return len(m.body)
}

// String returns the payload as a string.
func (m Message) String() string {
	return string(m.body)
}
