// File: runner/actions.go
// Author: momentics <momentics@gmail.com>
//
// Reactor actions wiring a child's pipes to the reader pair.

package runner

import (
	"errors"
	"time"

	"github.com/momentics/hioload-exec/api"
	"github.com/momentics/hioload-exec/fdio"
	"github.com/momentics/hioload-exec/pool"
	"github.com/momentics/hioload-exec/process"
	"github.com/momentics/hioload-exec/reactor"
	"golang.org/x/sys/unix"
)

// drainOnHangup keeps calling step after a hangup until it reports EOF.
// A pipe whose writer is gone still returns buffered bytes before EOF.
func drainOnHangup(revents int16, step func() (bool, error)) (bool, error) {
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 || revents&unix.POLLHUP == 0 {
		return false, nil
	}
	for {
		keep, err := step()
		if err != nil || !keep {
			return false, err
		}
	}
}

// outputAction feeds one of the child's output pipes to the reader pair.
type outputAction struct {
	r      *CommandRunner
	fd     *fdio.AutoFd
	stderr bool
}

var _ api.Action = (*outputAction)(nil)

func (a *outputAction) FD() int { return a.fd.FD() }

func (a *outputAction) Events() int16 { return reactor.EventIn }

func (a *outputAction) OnData(int16) (bool, error) {
	if a.stderr {
		return a.r.readers.Cerr(a.fd.FD())
	}
	return a.r.readers.Cin(a.fd.FD())
}

func (a *outputAction) OnError(revents int16) (bool, error) {
	return drainOnHangup(revents, func() (bool, error) { return a.OnData(revents) })
}

// Release counts the stream as closed; once both are gone the run is over.
func (a *outputAction) Release() { a.r.outputClosed() }

// forwarder streams an input descriptor into the child's stdin without ever
// blocking the reactor. It holds at most one chunk: the input side is parked
// while the chunk is pending and the stdin side is parked while it is empty.
type forwarder struct {
	in      *fdio.AutoFd
	h       *process.Handle
	timeout time.Duration

	buf      *[]byte
	pending  []byte
	eof      bool
	done     bool
	written  int64
	progress time.Time
}

func newForwarder(in *fdio.AutoFd, h *process.Handle, timeout time.Duration) *forwarder {
	return &forwarder{
		in:       in,
		h:        h,
		timeout:  timeout,
		buf:      pool.Chunks.GetBuffer(),
		progress: time.Now(),
	}
}

// actions returns the input side and the stdin side, in that order.
func (f *forwarder) actions() (api.Action, api.Action) {
	return &inputSide{f}, &stdinSide{f}
}

// stalled reports whether a chunk has waited longer than the stall limit
// without the child accepting a single byte of it.
func (f *forwarder) stalled() bool {
	return f.timeout > 0 && !f.done && len(f.pending) > 0 && time.Since(f.progress) >= f.timeout
}

// stallBudget is the time left before stalled turns true; ok is false when no
// chunk is pending.
func (f *forwarder) stallBudget() (time.Duration, bool) {
	if f.timeout <= 0 || f.done || len(f.pending) == 0 {
		return 0, false
	}
	if rem := f.timeout - time.Since(f.progress); rem > 0 {
		return rem, true
	}
	return 0, true
}

func (f *forwarder) stallError() error {
	return &api.TimeoutError{
		Op:        "stdin forward",
		TimeoutMs: int(f.timeout / time.Millisecond),
		Written:   int(f.written),
	}
}

// finish closes the child's stdin once and returns the chunk to the pool.
func (f *forwarder) finish() error {
	if f.done {
		return nil
	}
	f.done = true
	f.pending = nil
	pool.Chunks.PutBuffer(f.buf)
	f.buf = nil
	return f.h.CloseStdin()
}

// inputSide reads the next chunk once the previous one is flushed.
type inputSide struct{ f *forwarder }

var _ api.Action = (*inputSide)(nil)

func (a *inputSide) FD() int { return a.f.in.FD() }

func (a *inputSide) Events() int16 {
	if !a.f.done && len(a.f.pending) > 0 {
		return 0
	}
	return reactor.EventIn
}

func (a *inputSide) OnData(int16) (bool, error) {
	f := a.f
	if f.done {
		return false, nil
	}
	n, err := readInput(f.in.FD(), *f.buf)
	if err != nil {
		return false, err
	}
	if n < 0 {
		// spurious wakeup on a non-blocking input
		return true, nil
	}
	if n == 0 {
		f.eof = true
		if len(f.pending) == 0 {
			return false, f.finish()
		}
		return false, nil
	}
	f.pending = (*f.buf)[:n]
	f.progress = time.Now()
	return true, nil
}

// OnError keeps a hung-up input while a chunk is still pending; the next
// unparked cycle reads what is left and then sees EOF.
func (a *inputSide) OnError(revents int16) (bool, error) {
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		return false, a.f.finish()
	}
	if len(a.f.pending) > 0 {
		return true, nil
	}
	return a.OnData(revents)
}

// stdinSide flushes the pending chunk whenever the child's stdin has room.
type stdinSide struct{ f *forwarder }

var _ api.Action = (*stdinSide)(nil)

func (a *stdinSide) FD() int { return a.f.h.Stdin.FD() }

func (a *stdinSide) Events() int16 {
	if a.f.done || len(a.f.pending) == 0 {
		return 0
	}
	return reactor.EventOut
}

func (a *stdinSide) OnData(int16) (bool, error) {
	f := a.f
	if f.done {
		return false, nil
	}
	n, err := f.h.Stdin.WriteTimeout(f.pending, 0)
	if n > 0 {
		f.written += int64(n)
		f.pending = f.pending[n:]
		f.progress = time.Now()
	}
	var te *api.TimeoutError
	var pe *api.PollError
	switch {
	case err == nil, errors.As(err, &te):
		// a zero-wait write that ran out of pipe space is partial progress
	case errors.Is(err, unix.EPIPE), errors.As(err, &pe):
		// the child stopped reading its stdin
		return false, f.finish()
	default:
		return false, err
	}
	if len(f.pending) == 0 && f.eof {
		return false, f.finish()
	}
	return true, nil
}

// OnError means the read end is gone.
func (a *stdinSide) OnError(int16) (bool, error) {
	return false, a.f.finish()
}

// Release makes sure the child sees EOF on stdin.
func (a *stdinSide) Release() { _ = a.f.finish() }

// readInput reads once from fd; -1 means nothing was available.
func readInput(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return -1, nil
		default:
			return 0, api.NewSystemCallError("read", err)
		}
	}
}
