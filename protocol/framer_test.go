package protocol_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/protocol"
)

func TestFramerRoundTrip(t *testing.T) {
	payloads := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{0xAB}, 70000)}
	for _, payload := range payloads {
		enc := protocol.NewFramer(0)
		if err := enc.PushOutbound(api.NewMessage(payload)); err != nil {
			t.Fatal(err)
		}
		dec := protocol.NewFramer(0)
		got, err := dec.PullInbound(enc.Pending())
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || !bytes.Equal(got[0].Bytes(), payload) {
			t.Errorf("round trip of %d bytes produced %d messages", len(payload), len(got))
		}
		if dec.InboundBuffered() != 0 {
			t.Errorf("unexpected tail of %d bytes", dec.InboundBuffered())
		}
	}
}

func TestFramerSplitAtEveryOffset(t *testing.T) {
	enc := protocol.NewFramer(0)
	for _, s := range []string{"a", "", "bcd"} {
		if err := enc.PushOutbound(api.NewMessageString(s)); err != nil {
			t.Fatal(err)
		}
	}
	wire := append([]byte(nil), enc.Pending()...)

	for cut := 0; cut <= len(wire); cut++ {
		dec := protocol.NewFramer(0)
		first, err := dec.PullInbound(wire[:cut])
		if err != nil {
			t.Fatal(err)
		}
		second, err := dec.PullInbound(wire[cut:])
		if err != nil {
			t.Fatal(err)
		}
		all := append(first, second...)
		if len(all) != 3 || all[0].String() != "a" || all[1].Len() != 0 || all[2].String() != "bcd" {
			t.Fatalf("cut %d: decoded %v", cut, all)
		}
	}
}

func TestFramerRejectsOversizedPrefix(t *testing.T) {
	var hdr [protocol.HeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], 1<<31)

	dec := protocol.NewFramer(0)
	msgs, err := dec.PullInbound(hdr[:])
	if !errors.Is(err, api.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
	var fe *api.FrameError
	if !errors.As(err, &fe) || fe.Declared != 1<<31 {
		t.Errorf("unexpected frame error %#v", err)
	}
	if dec.InboundBuffered() != 0 {
		t.Error("claimed buffer must not be retained")
	}
	if _, err := dec.PullInbound([]byte{0, 0, 0, 0}); !errors.Is(err, api.ErrFrameTooLarge) {
		t.Error("framer must stay failed after an oversized frame")
	}
}

func TestFramerOutboundLimit(t *testing.T) {
	f := protocol.NewFramer(4)
	if err := f.PushOutbound(api.NewMessageString("12345")); !errors.Is(err, api.ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
	if f.Buffered() != 0 {
		t.Error("rejected message must not be staged")
	}
}

type trickleWriter struct {
	buf   bytes.Buffer
	limit int
}

func (w *trickleWriter) Write(p []byte) (int, error) {
	if w.limit == 0 {
		return 0, api.ErrWouldBlock
	}
	n := len(p)
	if n > w.limit {
		n = w.limit
	}
	w.limit -= n
	w.buf.Write(p[:n])
	return n, nil
}

func TestFramerPartialFlush(t *testing.T) {
	f := protocol.NewFramer(0)
	_ = f.PushOutbound(api.NewMessageString("abcdef"))
	w := &trickleWriter{limit: 3}

	if err := f.FlushTo(w); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
	if f.Buffered() != 7 {
		t.Fatalf("Buffered = %d, want 7", f.Buffered())
	}
	w.limit = 100
	if err := f.FlushTo(w); err != nil {
		t.Fatal(err)
	}
	got, err := protocol.NewFramer(0).PullInbound(w.buf.Bytes())
	if err != nil || len(got) != 1 || got[0].String() != "abcdef" {
		t.Errorf("flushed stream decoded to %v, %v", got, err)
	}
}
