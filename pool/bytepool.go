// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"
	"sync/atomic"
)

// DefaultChunkSize is the read chunk used by reactors and stream pumps.
const DefaultChunkSize = 64 << 10

// BytePool hands out fixed-size byte slices.
type BytePool struct {
	pool sync.Pool
	size int

	allocs atomic.Int64
	reuses atomic.Int64
}

// NewBytePool returns a pool of size-byte buffers. size <= 0 selects
// DefaultChunkSize.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultChunkSize
	}
	bp := &BytePool{size: size}
	bp.pool.New = func() any {
		bp.allocs.Add(1)
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the length of every buffer handed out.
func (b *BytePool) Size() int { return b.size }

// Get returns a buffer of Size() bytes.
func (b *BytePool) Get() []byte {
	return *b.pool.Get().(*[]byte)
}

// Put returns buf to the pool. Buffers of a foreign size are dropped.
func (b *BytePool) Put(buf []byte) {
	if cap(buf) < b.size {
		return
	}
	buf = buf[:b.size]
	b.reuses.Add(1)
	b.pool.Put(&buf)
}

// Stats reports how many buffers were allocated and how many were returned.
func (b *BytePool) Stats() (allocs, returned int64) {
	return b.allocs.Load(), b.reuses.Load()
}

var shared = NewBytePool(DefaultChunkSize)

// Chunks returns the process-wide DefaultChunkSize pool.
func Chunks() *BytePool { return shared }
