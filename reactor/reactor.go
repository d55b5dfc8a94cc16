// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// poll(2) based reactor: an ordered readiness set kept in lock-step with the
// actions it dispatches.

package reactor

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-exec/api"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Stats counts reactor activity since construction.
type Stats struct {
	Cycles          uint64
	Timeouts        uint64
	DataDispatches  uint64
	ErrorDispatches uint64
	Removed         uint64
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger used for dispatch tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// Poller owns the readiness set and its actions. fds[i] always belongs to
// actions[i]. It is not safe for concurrent use.
type Poller struct {
	proc    api.Processor
	fds     []unix.PollFd
	actions []api.Action

	// actions added from inside a handler wait here until the cycle ends
	pending     *queue.Queue
	dispatching bool

	log   zerolog.Logger
	stats Stats
}

// New creates a Poller driven by proc.
func New(proc api.Processor, opts ...Option) *Poller {
	p := &Poller{
		proc:    proc,
		pending: queue.New(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add registers an action. Calls made while a cycle is dispatching take
// effect before the next readiness wait.
func (p *Poller) Add(a api.Action) *Poller {
	if p.dispatching {
		p.pending.Add(a)
		return p
	}
	p.insert(a)
	return p
}

// Len returns the number of registered actions, including pending ones.
func (p *Poller) Len() int {
	return len(p.actions) + p.pending.Length()
}

// Stats returns a snapshot of the counters.
func (p *Poller) Stats() Stats { return p.stats }

// Reset releases and drops every action.
func (p *Poller) Reset() {
	p.splice()
	for i := len(p.actions) - 1; i >= 0; i-- {
		p.remove(i)
	}
}

// Once runs one wait/dispatch cycle. It returns false when the run is over:
// the action list is empty, the processor stopped, or the timeout hook gave up.
func (p *Poller) Once() (bool, error) {
	p.splice()
	if len(p.actions) == 0 {
		return false, nil
	}
	found, err := p.poll()
	if err != nil || !found {
		return false, err
	}
	return p.process()
}

// Run cycles until Once reports the end of the run or fails.
func (p *Poller) Run() error {
	for {
		more, err := p.Once()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// poll refreshes each entry's mask from its action before waiting. An action
// whose mask is 0 is parked: its entry gets a negative descriptor, which
// poll(2) skips, so not even a hangup is reported for it.
func (p *Poller) poll() (bool, error) {
	for i, a := range p.actions {
		p.fds[i].Revents = 0
		if ev := a.Events(); ev != 0 {
			p.fds[i].Fd, p.fds[i].Events = int32(a.FD()), ev
		} else {
			p.fds[i].Fd, p.fds[i].Events = -1, 0
		}
	}
	for {
		n, err := unix.Poll(p.fds, p.proc.PollTimeout())
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, api.NewSystemCallError("poll", err)
		}
		p.stats.Cycles++
		if n > 0 {
			return true, nil
		}
		p.stats.Timeouts++
		if !p.proc.TimeoutHook() {
			p.log.Debug().Uint64("timeouts", p.stats.Timeouts).Msg("timeout hook ended run")
			return false, nil
		}
	}
}

// process runs the data pass then the error pass. An action dropped in the
// data pass is not seen by the error pass of the same cycle.
func (p *Poller) process() (bool, error) {
	p.dispatching = true
	defer func() { p.dispatching = false }()

	for i := 0; i < len(p.fds); {
		if p.fds[i].Revents&p.fds[i].Events != 0 {
			keep, err := p.dispatch(i, api.DataPath)
			if err != nil {
				return false, err
			}
			if !keep {
				p.remove(i)
				continue
			}
		}
		i++
	}

	for i := 0; i < len(p.fds); {
		if p.fds[i].Revents&ErrorEvents != 0 {
			keep, err := p.dispatch(i, api.ErrorPath)
			if err != nil {
				return false, err
			}
			if !keep {
				p.remove(i)
				continue
			}
		}
		i++
	}

	return p.proc.KeepRunning() && p.Len() > 0, nil
}

func (p *Poller) dispatch(i int, kind api.ActionKind) (keep bool, err error) {
	a := p.actions[i]
	revents := p.fds[i].Revents
	defer func() {
		if r := recover(); r != nil {
			keep = false
			err = &api.ActionError{FD: a.FD(), Kind: kind, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if kind == api.DataPath {
		p.stats.DataDispatches++
		keep, err = a.OnData(revents)
	} else {
		p.stats.ErrorDispatches++
		keep, err = a.OnError(revents)
	}
	if err != nil {
		return false, &api.ActionError{FD: a.FD(), Kind: kind, Err: err}
	}
	if !keep {
		p.log.Debug().Int("fd", a.FD()).Stringer("path", kind).
			Uint16("revents", uint16(revents)).Msg("action removed")
	}
	return keep, nil
}

func (p *Poller) insert(a api.Action) {
	p.fds = append(p.fds, unix.PollFd{Fd: int32(a.FD()), Events: a.Events()})
	p.actions = append(p.actions, a)
}

func (p *Poller) remove(i int) {
	a := p.actions[i]
	last := len(p.actions) - 1
	copy(p.fds[i:], p.fds[i+1:])
	p.fds = p.fds[:last]
	copy(p.actions[i:], p.actions[i+1:])
	p.actions[last] = nil
	p.actions = p.actions[:last]
	p.stats.Removed++
	if r, ok := a.(api.Releaser); ok {
		r.Release()
	}
}

func (p *Poller) splice() {
	for p.pending.Length() > 0 {
		p.insert(p.pending.Remove().(api.Action))
	}
}
