// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

// Call records one dispatch.
type Call struct {
	Revents int16
	Error   bool
}

// Action is a scripted api.Action. Data and Err decide each dispatch result;
// nil handlers keep the action registered.
type Action struct {
	Fd   int
	Mask int16

	Data func(revents int16) (bool, error)
	Err  func(revents int16) (bool, error)

	Calls    []Call
	Released bool
}

// NewAction returns an action on fd watching mask.
func NewAction(fd int, mask int16) *Action {
	return &Action{Fd: fd, Mask: mask}
}

func (a *Action) FD() int { return a.Fd }

func (a *Action) Events() int16 { return a.Mask }

func (a *Action) OnData(revents int16) (bool, error) {
	a.Calls = append(a.Calls, Call{Revents: revents})
	if a.Data == nil {
		return true, nil
	}
	return a.Data(revents)
}

func (a *Action) OnError(revents int16) (bool, error) {
	a.Calls = append(a.Calls, Call{Revents: revents, Error: true})
	if a.Err == nil {
		return true, nil
	}
	return a.Err(revents)
}

func (a *Action) Release() { a.Released = true }

// DataCalls counts data-path dispatches.
func (a *Action) DataCalls() int {
	n := 0
	for _, c := range a.Calls {
		if !c.Error {
			n++
		}
	}
	return n
}

// ErrorCalls counts error-path dispatches.
func (a *Action) ErrorCalls() int {
	return len(a.Calls) - a.DataCalls()
}

// Drop is a handler that deregisters the action.
func Drop(int16) (bool, error) { return false, nil }

// Keep is a handler that keeps the action registered.
func Keep(int16) (bool, error) { return true, nil }
