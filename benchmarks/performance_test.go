// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for hioload-mq components.

package benchmarks

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/facade"
	"github.com/momentics/hioload-mq/internal/concurrency"
	"github.com/momentics/hioload-mq/pool"
	"github.com/momentics/hioload-mq/protocol"
	"github.com/momentics/hioload-mq/socket"
)

// BenchmarkChunkPool measures read-buffer reuse.
func BenchmarkChunkPool(b *testing.B) {
	chunks := pool.Chunks()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := chunks.Get()
			chunks.Put(buf)
		}
	})
}

// BenchmarkRingBufferThroughput tests lock-free ring buffer performance.
func BenchmarkRingBufferThroughput(b *testing.B) {
	ring := concurrency.NewRingBuffer[int](1024)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if !ring.Enqueue(i) {
				ring.Dequeue()
				ring.Enqueue(i)
			}
			i++
		}
	})
}

// BenchmarkFramerEncode measures outbound framing of 1 KiB messages.
func BenchmarkFramerEncode(b *testing.B) {
	f := protocol.NewFramer(protocol.DefaultMaxFrameBytes)
	m := api.NewMessage(make([]byte, 1024))
	b.SetBytes(int64(protocol.HeaderLen + m.Len()))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := f.PushOutbound(m); err != nil {
			b.Fatal(err)
		}
		if err := f.FlushTo(io.Discard); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFramerDecode measures inbound parsing of 1 KiB frames.
func BenchmarkFramerDecode(b *testing.B) {
	frame, err := protocol.Encode(api.NewMessage(make([]byte, 1024)), protocol.DefaultMaxFrameBytes)
	if err != nil {
		b.Fatal(err)
	}
	f := protocol.NewFramer(protocol.DefaultMaxFrameBytes)
	b.SetBytes(int64(len(frame)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msgs, err := f.PullInbound(frame)
		if err != nil || len(msgs) != 1 {
			b.Fatalf("decode: %d messages, %v", len(msgs), err)
		}
	}
}

func benchmarkPushPull(b *testing.B, endpoint string, size int) {
	cfg := facade.DefaultConfig()
	nop := zerolog.Nop()
	cfg.Logger = &nop
	ctx, err := facade.New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	defer ctx.Terminate()

	pull, err := ctx.Socket(api.PatternPull)
	if err != nil {
		b.Fatal(err)
	}
	push, err := ctx.Socket(api.PatternPush, socket.WithBlocking(true))
	if err != nil {
		b.Fatal(err)
	}
	addr, err := pull.Bind(endpoint)
	if err != nil {
		b.Fatal(err)
	}
	if err := push.Connect(addr); err != nil {
		b.Fatal(err)
	}

	m := api.NewMessage(make([]byte, size))
	b.SetBytes(int64(size))
	b.ResetTimer()
	go func() {
		for i := 0; i < b.N; i++ {
			if push.Send(m) != nil {
				return
			}
		}
	}()
	for i := 0; i < b.N; i++ {
		if _, err := pull.RecvTimeout(10 * time.Second); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPushPullInproc measures end-to-end throughput over inproc.
func BenchmarkPushPullInproc(b *testing.B) {
	benchmarkPushPull(b, "inproc://bench", 256)
}

// BenchmarkPushPullTCP measures end-to-end throughput over loopback tcp.
func BenchmarkPushPullTCP(b *testing.B) {
	benchmarkPushPull(b, "tcp://127.0.0.1:0", 256)
}
