// File: fdio/autofd.go
// Author: momentics <momentics@gmail.com>
//
// Shared-ownership descriptor with memoized blocking mode and deadline-bounded I/O.

package fdio

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-exec/api"
	"golang.org/x/sys/unix"
)

// ErrTimedOut is returned by ReadTimeout when nothing became readable in time.
// It is distinct from io.EOF, which means the peer closed.
var ErrTimedOut = errors.New("fdio: read timed out")

// pollErrorFlags are the revents that make a single-fd wait fatal.
const pollErrorFlags = unix.POLLNVAL | unix.POLLERR | unix.POLLHUP

type fdState struct {
	fd   int
	refs atomic.Int32

	mu        sync.Mutex
	blocking  bool
	connected bool
}

// AutoFd is one owner of a shared descriptor.
type AutoFd struct {
	state  *fdState
	closed atomic.Bool
}

var _ io.ReadWriteCloser = (*AutoFd)(nil)

// New takes ownership of fd. The blocking flag is read from the descriptor.
func New(fd int) *AutoFd {
	s := &fdState{fd: fd, blocking: true}
	if flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0); err == nil {
		s.blocking = flags&unix.O_NONBLOCK == 0
	}
	s.refs.Store(1)
	return &AutoFd{state: s}
}

// Share returns a new owner of the same descriptor. It must not be called on
// a handle that has already been closed.
func (a *AutoFd) Share() *AutoFd {
	a.state.refs.Add(1)
	return &AutoFd{state: a.state}
}

// Close releases this owner. The descriptor is closed when the last owner
// releases; further calls on the same handle are no-ops.
func (a *AutoFd) Close() error {
	if a == nil || !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	if a.state.refs.Add(-1) > 0 {
		return nil
	}
	if err := unix.Close(a.state.fd); err != nil {
		return api.NewSystemCallError("close", err)
	}
	return nil
}

// FD returns the raw descriptor.
func (a *AutoFd) FD() int { return a.state.fd }

// Refs returns the number of live owners.
func (a *AutoFd) Refs() int { return int(a.state.refs.Load()) }

// Closed reports whether this owner has been released.
func (a *AutoFd) Closed() bool { return a.closed.Load() }

// IsBlocking reports the memoized blocking mode.
func (a *AutoFd) IsBlocking() bool {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	return a.state.blocking
}

// IsConnected reports whether Connect succeeded on this descriptor.
func (a *AutoFd) IsConnected() bool {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	return a.state.connected
}

// SetBlocking toggles O_NONBLOCK. The fcntl is skipped when the handle is
// already in the requested mode.
func (a *AutoFd) SetBlocking(blocking bool) error {
	if err := a.usable(); err != nil {
		return err
	}
	s := a.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocking == blocking {
		return nil
	}
	if err := unix.SetNonblock(s.fd, !blocking); err != nil {
		return api.NewSystemCallError("fcntl", err)
	}
	s.blocking = blocking
	return nil
}

// Read blocks until data or EOF, switching the handle to blocking mode first.
func (a *AutoFd) Read(p []byte) (int, error) {
	if err := a.SetBlocking(true); err != nil {
		return 0, err
	}
	return a.read(p)
}

// ReadTimeout waits up to timeoutMs for readability, then reads once.
// It returns ErrTimedOut if the wait expired, io.EOF if the peer closed and
// *api.PollError if the wait reported hangup, error or invalid flags.
func (a *AutoFd) ReadTimeout(p []byte, timeoutMs int) (int, error) {
	ready, err := a.wait(unix.POLLIN, timeoutMs)
	if err != nil {
		return 0, err
	}
	if !ready {
		return 0, ErrTimedOut
	}
	n, err := a.read(p)
	if errors.Is(err, unix.EAGAIN) {
		return 0, ErrTimedOut
	}
	return n, err
}

// Write blocks until all of p is written, switching to blocking mode first.
func (a *AutoFd) Write(p []byte) (int, error) {
	if err := a.SetBlocking(true); err != nil {
		return 0, err
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(a.state.fd, p[written:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return written, api.NewSystemCallError("write", err)
		}
		written += n
	}
	return written, nil
}

// WriteTimeout writes all of p, waiting up to timeoutMs for writability
// before each chunk. A wait that expires before p is flushed fails with
// *api.TimeoutError carrying the partial count.
func (a *AutoFd) WriteTimeout(p []byte, timeoutMs int) (int, error) {
	written := 0
	for written < len(p) {
		ready, err := a.wait(unix.POLLOUT, timeoutMs)
		if err != nil {
			return written, err
		}
		if !ready {
			return written, &api.TimeoutError{Op: "write", TimeoutMs: timeoutMs, Written: written}
		}
		n, err := unix.Write(a.state.fd, p[written:])
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return written, api.NewSystemCallError("write", err)
		}
		written += n
	}
	return written, nil
}

// SeekSet moves to an absolute offset.
func (a *AutoFd) SeekSet(pos int64) (int64, error) {
	return a.seek(pos, io.SeekStart)
}

// SeekOffset moves relative to the current offset.
func (a *AutoFd) SeekOffset(off int64) (int64, error) {
	return a.seek(off, io.SeekCurrent)
}

// Size returns the length of the underlying file and restores the offset.
func (a *AutoFd) Size() (int64, error) {
	cur, err := a.seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := a.seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := a.seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// Connect connects a socket descriptor and marks the handle connected.
func (a *AutoFd) Connect(sa unix.Sockaddr) error {
	if err := a.usable(); err != nil {
		return err
	}
	for {
		err := unix.Connect(a.state.fd, sa)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return api.NewSystemCallError("connect", err)
		}
		break
	}
	a.state.mu.Lock()
	a.state.connected = true
	a.state.mu.Unlock()
	return nil
}

func (a *AutoFd) read(p []byte) (int, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	for {
		n, err := unix.Read(a.state.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, api.NewSystemCallError("read", err)
		}
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

func (a *AutoFd) seek(off int64, whence int) (int64, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	pos, err := unix.Seek(a.state.fd, off, whence)
	if err != nil {
		return 0, api.NewSystemCallError("lseek", err)
	}
	return pos, nil
}

// wait is the single-shot readiness wait under ReadTimeout and WriteTimeout.
// The handle is put in non-blocking mode so the following call cannot stall.
func (a *AutoFd) wait(events int16, timeoutMs int) (bool, error) {
	if err := a.SetBlocking(false); err != nil {
		return false, err
	}
	fds := []unix.PollFd{{Fd: int32(a.state.fd), Events: events}}
	start := time.Now()
	remaining := timeoutMs
	for {
		fds[0].Revents = 0
		n, err := unix.Poll(fds, remaining)
		if err == unix.EINTR {
			if timeoutMs >= 0 {
				remaining = timeoutMs - int(time.Since(start).Milliseconds())
				if remaining <= 0 {
					return false, nil
				}
			}
			continue
		}
		if err != nil {
			return false, api.NewSystemCallError("poll", err)
		}
		if n == 0 {
			return false, nil
		}
		break
	}
	rev := fds[0].Revents
	if rev&pollErrorFlags != 0 || rev&events == 0 {
		return false, &api.PollError{FD: a.state.fd, Requested: events, Returned: rev}
	}
	return true, nil
}

func (a *AutoFd) usable() error {
	if a == nil || a.closed.Load() {
		return api.ErrHandleClosed
	}
	return nil
}
