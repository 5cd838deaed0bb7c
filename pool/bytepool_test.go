package pool_test

import (
	"testing"

	"github.com/momentics/hioload-mq/pool"
)

func TestBytePoolSize(t *testing.T) {
	bp := pool.NewBytePool(128)
	b1 := bp.Get()
	if len(b1) != 128 {
		t.Fatalf("len = %d, want 128", len(b1))
	}
	bp.Put(b1[:10])
	b2 := bp.Get()
	if len(b2) != 128 {
		t.Errorf("returned buffer must be restored to full size, got %d", len(b2))
	}
}

func TestBytePoolDropsForeignBuffers(t *testing.T) {
	bp := pool.NewBytePool(64)
	bp.Put(make([]byte, 8))
	if _, returned := bp.Stats(); returned != 0 {
		t.Errorf("short buffer must not be pooled, returned = %d", returned)
	}
}

func TestBytePoolDefaultSize(t *testing.T) {
	if got := pool.NewBytePool(0).Size(); got != pool.DefaultChunkSize {
		t.Errorf("Size = %d, want %d", got, pool.DefaultChunkSize)
	}
}
