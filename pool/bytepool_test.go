package pool_test

import (
	"testing"

	"github.com/momentics/hioload-exec/pool"
)

func TestBytePoolSize(t *testing.T) {
	bp := pool.NewBytePool(128)
	b := bp.GetBuffer()
	if len(*b) != 128 {
		t.Fatalf("len = %d", len(*b))
	}
	*b = (*b)[:3]
	bp.PutBuffer(b)
	b2 := bp.GetBuffer()
	if len(*b2) != 128 {
		t.Fatalf("reused buffer len = %d, want restored to 128", len(*b2))
	}
}

func TestBytePoolDropsForeignBuffers(t *testing.T) {
	bp := pool.NewBytePool(64)
	small := make([]byte, 8)
	bp.PutBuffer(&small)
	bp.PutBuffer(nil)
	if b := bp.GetBuffer(); len(*b) != 64 {
		t.Fatalf("len = %d", len(*b))
	}
}

func TestChunksIs16KiB(t *testing.T) {
	if pool.Chunks.Size() != 16*1024 {
		t.Fatalf("chunk size %d", pool.Chunks.Size())
	}
}

func TestSyncPoolResetRejects(t *testing.T) {
	sp := pool.NewSyncPool(func() *int { v := 0; return &v })
	sp.Reset = func(v *int) bool { return *v >= 0 }

	first := sp.Get()
	if sp.Allocs() != 1 {
		t.Fatalf("allocs = %d", sp.Allocs())
	}
	*first = -1
	sp.Put(first) // rejected
	if got := sp.Get(); got == first {
		t.Fatal("rejected object came back from the pool")
	}
}
