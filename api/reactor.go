// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Contracts between the readiness reactor, the actions it dispatches and the
// processor that embeds it.

package api

// Action is a unit of readiness-driven work bound to one descriptor and an
// events mask. Both handlers return true to stay registered and false to be
// dropped from the reactor. A non-nil error aborts the current dispatch.
//
// Events is read again before every wait, so an action can change its
// interest between cycles. A zero mask parks the action until it returns a
// non-zero one.
type Action interface {
	FD() int
	Events() int16
	OnData(revents int16) (bool, error)
	OnError(revents int16) (bool, error)
}

// Processor drives a reactor run.
type Processor interface {
	// PollTimeout is the readiness wait in milliseconds; negative blocks forever.
	PollTimeout() int

	// TimeoutHook runs when a wait expired with nothing ready. Returning false
	// ends the run.
	TimeoutHook() bool

	// KeepRunning is consulted after every cycle.
	KeepRunning() bool
}

// Releaser is implemented by actions holding state that must be dropped the
// moment they leave the reactor.
type Releaser interface {
	Release()
}
