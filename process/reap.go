// File: process/reap.go
// Author: momentics <momentics@gmail.com>
//
// Bounded reap with SIGKILL escalation and wait status interpretation.

package process

import (
	"errors"
	"math"
	"time"

	"github.com/momentics/hioload-exec/api"
	"github.com/momentics/hioload-exec/internal/concurrency"
	"golang.org/x/sys/unix"
)

const (
	// NoTimeout makes Wait block until the child exits.
	NoTimeout time.Duration = -1

	// DefaultReapTimeout is the budget used by the command runner.
	DefaultReapTimeout = 10 * time.Second

	firstBackoff    = time.Millisecond
	maxBlockingStep = 20 * time.Millisecond
)

// ExitInfo summarizes how a reaped child ended.
type ExitInfo struct {
	Pid      int
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   unix.Signal
	// Killed is set when the reap deadline forced a SIGKILL.
	Killed bool
}

// Wait reaps the child. It checks with WNOHANG, sleeping in doubling steps
// from 1ms. With NoTimeout the steps are capped at 20ms and it waits as long
// as it takes; otherwise, once timeout has elapsed, it sends SIGKILL and waits
// until the child is reaped.
func (h *Handle) Wait(timeout time.Duration) (unix.WaitStatus, error) {
	h.mu.Lock()
	reaped, status := h.reaped, h.status
	h.mu.Unlock()
	if reaped {
		return status, api.ErrAlreadyReaped
	}
	if !h.waiting.CompareAndSwap(false, true) {
		return 0, api.ErrAlreadyReaped
	}
	defer h.waiting.Store(false)

	if timeout < 0 {
		return h.waitBlocking()
	}

	b := concurrency.NewBackoff(firstBackoff, 0, timeout)
	for {
		ws, done, err := h.waitNoHang()
		if err != nil || done {
			return ws, err
		}
		if b.Expired() {
			h.log.Warn().Int("pid", h.Pid).Dur("timeout", timeout).Msg("reap deadline passed, sending SIGKILL")
			if err := h.Kill(unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
				return 0, err
			}
			h.mu.Lock()
			h.killed = true
			h.mu.Unlock()
			return h.waitBlocking()
		}
		b.Sleep()
	}
}

// Close reaps the child within timeout, closes the three descriptors and
// interprets the status: exit 0 is true, any other exit code is false with a
// nil error, a signal is *api.ProcessSignaledError.
func (h *Handle) Close(timeout time.Duration) (bool, error) {
	ws, err := h.Wait(timeout)
	closeErr := h.closeFDs()
	if err != nil {
		return false, errors.Join(err, closeErr)
	}
	ok, err := ExitResult(h.Pid, ws)
	return ok, errors.Join(err, closeErr)
}

// Exit describes the reaped status. It is zero until the child is reaped.
func (h *Handle) Exit() ExitInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := ExitInfo{Pid: h.Pid, Killed: h.killed}
	if !h.reaped {
		return info
	}
	switch {
	case h.status.Exited():
		info.Exited = true
		info.ExitCode = h.status.ExitStatus()
	case h.status.Signaled():
		info.Signaled = true
		info.Signal = h.status.Signal()
	}
	return info
}

// ExitResult maps a wait status to the command result.
func ExitResult(pid int, ws unix.WaitStatus) (bool, error) {
	switch {
	case ws.Exited():
		return ws.ExitStatus() == 0, nil
	case ws.Signaled():
		return false, &api.ProcessSignaledError{Pid: pid, Signal: ws.Signal()}
	default:
		return false, &api.ProcessUnknownTerminationError{Pid: pid, Status: ws}
	}
}

func (h *Handle) waitNoHang() (unix.WaitStatus, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ws unix.WaitStatus
	for {
		pid, err := unix.Wait4(h.Pid, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, false, api.NewSystemCallError("wait4", err)
		}
		if pid != h.Pid {
			return 0, false, nil
		}
		h.reaped, h.status = true, ws
		return ws, true, nil
	}
}

// waitBlocking reaps without a deadline. It polls with WNOHANG rather than
// blocking in wait4 so the pid is released and reaped is set under the same
// lock Kill takes: a concurrent Kill never reaches a recycled pid.
func (h *Handle) waitBlocking() (unix.WaitStatus, error) {
	b := concurrency.NewBackoff(firstBackoff, maxBlockingStep, time.Duration(math.MaxInt64))
	for {
		ws, done, err := h.waitNoHang()
		if err != nil || done {
			return ws, err
		}
		b.Sleep()
	}
}
