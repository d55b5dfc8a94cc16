// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the descriptor, reactor, process and runner layers.

package api

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Common errors used across the library.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyCommand    = errors.New("empty command")
	ErrNotStarted      = errors.New("command not started")
	ErrAlreadyReaped   = errors.New("process already reaped")
	ErrHandleClosed    = errors.New("descriptor handle is closed")
	ErrNotSupported    = errors.New("operation not supported")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeSystemCall
	ErrCodePoll
	ErrCodeTimeout
	ErrCodeSignaled
	ErrCodeUnknownTermination
	ErrCodeAction
	ErrCodeBusy
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeSystemCall:
		return "system-call"
	case ErrCodePoll:
		return "poll"
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeSignaled:
		return "signaled"
	case ErrCodeUnknownTermination:
		return "unknown-termination"
	case ErrCodeAction:
		return "action"
	case ErrCodeBusy:
		return "busy"
	default:
		return "internal"
	}
}

// Coded is implemented by every error of the taxonomy.
type Coded interface {
	error
	Code() ErrorCode
}

// CodeOf returns the code of the first coded error in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return ErrCodeInternal
}

// Error represents a structured error with code and context.
type Error struct {
	code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Code returns the error code.
func (e *Error) Code() ErrorCode { return e.code }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// SystemCallError reports an OS call that failed with errno.
type SystemCallError struct {
	Call  string
	Errno unix.Errno
}

// NewSystemCallError builds a SystemCallError from the error returned by x/sys/unix.
// Errors that carry no errno are mapped to EIO.
func NewSystemCallError(call string, err error) *SystemCallError {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		errno = unix.EIO
	}
	return &SystemCallError{Call: call, Errno: errno}
}

func (e *SystemCallError) Error() string {
	return fmt.Sprintf("%s: %s (errno %d)", e.Call, e.Errno.Error(), int(e.Errno))
}

func (e *SystemCallError) Code() ErrorCode { return ErrCodeSystemCall }

func (e *SystemCallError) Unwrap() error { return e.Errno }

// PollError reports a readiness wait that came back with hangup, error or
// invalid flags, or with events that were not requested.
type PollError struct {
	FD        int
	Requested int16
	Returned  int16
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll error on fd %d: requested %#x, returned %#x", e.FD, uint16(e.Requested), uint16(e.Returned))
}

func (e *PollError) Code() ErrorCode { return ErrCodePoll }

// Hangup reports whether the peer closed its end.
func (e *PollError) Hangup() bool { return e.Returned&unix.POLLHUP != 0 }

// TimeoutError reports a bounded write that could not flush before its deadline.
type TimeoutError struct {
	Op        string
	TimeoutMs int
	Written   int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %dms (%d bytes written)", e.Op, e.TimeoutMs, e.Written)
}

func (e *TimeoutError) Code() ErrorCode { return ErrCodeTimeout }

func (e *TimeoutError) Unwrap() error { return unix.ETIMEDOUT }

// ProcessSignaledError reports a child terminated by a signal.
type ProcessSignaledError struct {
	Pid    int
	Signal unix.Signal
}

func (e *ProcessSignaledError) Error() string {
	return fmt.Sprintf("child %d terminated with signal %d (%s)", e.Pid, int(e.Signal), unix.SignalName(e.Signal))
}

func (e *ProcessSignaledError) Code() ErrorCode { return ErrCodeSignaled }

// ProcessUnknownTerminationError reports a wait status that is neither an
// exit nor a signal termination.
type ProcessUnknownTerminationError struct {
	Pid    int
	Status unix.WaitStatus
}

func (e *ProcessUnknownTerminationError) Error() string {
	return fmt.Sprintf("child %d terminated, unrecognized wait status %#x", e.Pid, uint32(e.Status))
}

func (e *ProcessUnknownTerminationError) Code() ErrorCode { return ErrCodeUnknownTermination }

// ActionKind names the dispatch path an action was on.
type ActionKind int

const (
	DataPath ActionKind = iota
	ErrorPath
)

func (k ActionKind) String() string {
	if k == ErrorPath {
		return "error"
	}
	return "data"
}

// ActionError wraps a failure raised by an action during dispatch.
type ActionError struct {
	FD   int
	Kind ActionKind
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action on fd %d (%s path): %v", e.FD, e.Kind, e.Err)
}

func (e *ActionError) Code() ErrorCode { return ErrCodeAction }

func (e *ActionError) Unwrap() error { return e.Err }
