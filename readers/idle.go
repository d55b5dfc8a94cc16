// File: readers/idle.go
// Author: momentics <momentics@gmail.com>

package readers

import "github.com/momentics/hioload-exec/api"

// Idle wraps a ReaderPair with an idle abort: the reactor waits TimeoutMs per
// cycle and gives up after MaxIdle consecutive waits with no output.
type Idle struct {
	api.ReaderPair

	TimeoutMs int
	MaxIdle   int

	idle int
}

// NewIdle wraps inner. maxIdle <= 0 never gives up.
func NewIdle(inner api.ReaderPair, timeoutMs, maxIdle int) *Idle {
	return &Idle{ReaderPair: inner, TimeoutMs: timeoutMs, MaxIdle: maxIdle}
}

func (r *Idle) PollTimeout() int { return r.TimeoutMs }

func (r *Idle) TimeoutHook() bool {
	r.idle++
	if !r.ReaderPair.TimeoutHook() {
		return false
	}
	return r.MaxIdle <= 0 || r.idle < r.MaxIdle
}

func (r *Idle) Cin(fd int) (bool, error) {
	r.idle = 0
	return r.ReaderPair.Cin(fd)
}

func (r *Idle) Cerr(fd int) (bool, error) {
	r.idle = 0
	return r.ReaderPair.Cerr(fd)
}

// Expired reports whether the idle limit ended the last run.
func (r *Idle) Expired() bool { return r.MaxIdle > 0 && r.idle >= r.MaxIdle }

// Counts forwards to the wrapped reader when it counts bytes.
func (r *Idle) Counts() (stdout, stderr int64) {
	if c, ok := r.ReaderPair.(api.ByteCounter); ok {
		return c.Counts()
	}
	return 0, 0
}

// Clear resets the idle count and clears the wrapped reader.
func (r *Idle) Clear() {
	r.idle = 0
	r.ReaderPair.Clear()
}
