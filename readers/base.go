// File: readers/base.go
// Author: momentics <momentics@gmail.com>

package readers

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-exec/api"
	"github.com/momentics/hioload-exec/pool"
	"golang.org/x/sys/unix"
)

// Base supplies the default ReaderPair hooks: wait forever, never give up,
// nothing to clear.
type Base struct{}

func (Base) PollTimeout() int { return -1 }

func (Base) TimeoutHook() bool { return true }

func (Base) Clear() {}

// counter tracks consumed bytes per stream.
type counter struct {
	outN atomic.Int64
	errN atomic.Int64
}

func (c *counter) Counts() (stdout, stderr int64) {
	return c.outN.Load(), c.errN.Load()
}

func (c *counter) reset() {
	c.outN.Store(0)
	c.errN.Store(0)
}

// readChunk reads once from fd. keep is false at EOF. EAGAIN is a spurious
// wakeup on a non-blocking pipe and keeps the stream registered.
func readChunk(fd int, buf []byte) (n int, keep bool, err error) {
	for {
		n, err := unix.Read(fd, buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, true, nil
		case err != nil:
			return 0, false, api.NewSystemCallError("read", err)
		}
		return n, n > 0, nil
	}
}

// pump reads one pooled chunk from fd and hands the bytes to sink.
func pump(fd int, count *atomic.Int64, sink func([]byte) error) (bool, error) {
	bp := pool.Chunks.GetBuffer()
	defer pool.Chunks.PutBuffer(bp)
	n, keep, err := readChunk(fd, *bp)
	if err != nil || n == 0 {
		return keep, err
	}
	count.Add(int64(n))
	if err := sink((*bp)[:n]); err != nil {
		return false, err
	}
	return keep, nil
}

// lockedBuffer is a byte accumulator safe to read from other goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *lockedBuffer) Write(p []byte) error {
	b.mu.Lock()
	b.buf = append(b.buf, p...)
	b.mu.Unlock()
	return nil
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	b.buf = b.buf[:0]
	b.mu.Unlock()
}
