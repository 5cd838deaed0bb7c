// File: protocol/framer.go
// Package protocol implements the length-prefixed frame codec with size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Framer is owned by exactly one peer and touched only by the reactor
// goroutine that owns that peer; it performs no locking.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/hioload-mq/api"
)

// Writer is the subset of api.Handle the framer flushes into.
type Writer interface {
	Write(p []byte) (int, error)
}

// Framer encodes outbound messages and decodes inbound byte chunks.
type Framer struct {
	maxFrame uint64

	in  []byte // incomplete inbound tail
	err error  // sticky decode failure

	out    []byte
	outOff int
}

// NewFramer returns a framer enforcing maxFrameBytes. Values <= 0 select
// DefaultMaxFrameBytes.
func NewFramer(maxFrameBytes int) *Framer {
	limit := uint64(DefaultMaxFrameBytes)
	if maxFrameBytes > 0 {
		limit = uint64(maxFrameBytes)
	}
	if limit > MaxEncodableFrameBytes {
		limit = MaxEncodableFrameBytes
	}
	return &Framer{maxFrame: limit}
}

// MaxFrameBytes returns the enforced payload limit.
func (f *Framer) MaxFrameBytes() int {
	return int(f.maxFrame)
}

// PushOutbound frames m and stages it for writing.
func (f *Framer) PushOutbound(m api.Message) error {
	n := uint64(m.Len())
	if n > f.maxFrame {
		return &api.FrameError{Declared: n, Limit: f.maxFrame}
	}
	f.compact()
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(n))
	f.out = append(f.out, hdr[:]...)
	f.out = append(f.out, m.Bytes()...)
	return nil
}

// Pending returns staged bytes not yet written. The slice is valid until
// the next call that mutates the framer.
func (f *Framer) Pending() []byte {
	return f.out[f.outOff:]
}

// Buffered returns the number of staged outbound bytes.
func (f *Framer) Buffered() int {
	return len(f.out) - f.outOff
}

// Advance marks n staged bytes as written.
func (f *Framer) Advance(n int) {
	f.outOff += n
	if f.outOff >= len(f.out) {
		f.out = f.out[:0]
		f.outOff = 0
	}
}

// FlushTo writes staged bytes until everything is written or w stops making
// progress. It returns nil when fully flushed, api.ErrWouldBlock when bytes
// remain, or the writer's error.
func (f *Framer) FlushTo(w Writer) error {
	for f.Buffered() > 0 {
		n, err := w.Write(f.Pending())
		if n > 0 {
			f.Advance(n)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return api.ErrWouldBlock
		}
	}
	return nil
}

// DiscardOutbound drops every staged byte.
func (f *Framer) DiscardOutbound() {
	f.out = f.out[:0]
	f.outOff = 0
}

// PullInbound consumes a chunk of the inbound stream and returns every
// message it completes. Incomplete tails are buffered for the next call.
// A declared length above the limit fails with an error matching
// api.ErrFrameTooLarge before the payload is allocated; the framer then
// refuses further input.
func (f *Framer) PullInbound(p []byte) ([]api.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	data := p
	if len(f.in) > 0 {
		f.in = append(f.in, p...)
		data = f.in
	}

	var msgs []api.Message
	for len(data) >= HeaderLen {
		n := uint64(binary.BigEndian.Uint32(data))
		if n > f.maxFrame {
			f.err = &api.FrameError{Declared: n, Limit: f.maxFrame}
			f.in = nil
			return msgs, f.err
		}
		if uint64(len(data)-HeaderLen) < n {
			break
		}
		end := HeaderLen + int(n)
		body := make([]byte, n)
		copy(body, data[HeaderLen:end])
		msgs = append(msgs, api.AdoptMessage(body))
		data = data[end:]
	}

	// data may alias f.in; append(f.in[:0], ...) moves it with copy semantics.
	f.in = append(f.in[:0], data...)
	return msgs, nil
}

// InboundBuffered returns the size of the buffered incomplete tail.
func (f *Framer) InboundBuffered() int {
	return len(f.in)
}

// Reset clears all inbound and outbound state.
func (f *Framer) Reset() {
	f.in = nil
	f.err = nil
	f.DiscardOutbound()
}

// compact reclaims written bytes once they dominate the outbound buffer.
func (f *Framer) compact() {
	if f.outOff == 0 || f.outOff < len(f.out)/2 {
		return
	}
	n := copy(f.out, f.out[f.outOff:])
	f.out = f.out[:n]
	f.outOff = 0
}

// Encode returns the wire representation of m.
func Encode(m api.Message, maxFrameBytes int) ([]byte, error) {
	f := NewFramer(maxFrameBytes)
	if err := f.PushOutbound(m); err != nil {
		return nil, err
	}
	return f.Pending(), nil
}
