// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

// ChunkSize is the read/forward unit used on pipes.
const ChunkSize = 16 * 1024

// BytePool hands out slices of one fixed length.
type BytePool struct {
	pool *SyncPool[*[]byte]
	size int
}

// NewBytePool creates a pool of size-byte slices.
func NewBytePool(size int) *BytePool {
	sp := NewSyncPool(func() *[]byte {
		b := make([]byte, size)
		return &b
	})
	// foreign sizes are dropped; pooled slices come back at full length
	sp.Reset = func(b *[]byte) bool {
		if b == nil || cap(*b) < size {
			return false
		}
		*b = (*b)[:size]
		return true
	}
	return &BytePool{pool: sp, size: size}
}

// Size is the length of every buffer.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer of Size bytes.
func (b *BytePool) GetBuffer() *[]byte { return b.pool.Get() }

// PutBuffer returns a buffer to the pool.
func (b *BytePool) PutBuffer(buf *[]byte) { b.pool.Put(buf) }

// Allocs counts buffers allocated since construction.
func (b *BytePool) Allocs() int64 { return b.pool.Allocs() }

// Chunks is the shared 16KiB pool.
var Chunks = NewBytePool(ChunkSize)
