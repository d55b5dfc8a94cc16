// File: internal/logging/scope.go
// Author: momentics <momentics@gmail.com>

package logging

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scope is the log context of one supervised command, from launch to reap.
type Scope struct {
	RunID string

	log      zerolog.Logger
	start    time.Time
	released atomic.Bool
}

// Acquire opens a scope with a fresh run id and logs the launch.
func Acquire(parent zerolog.Logger, argv []string) *Scope {
	id := uuid.NewString()
	s := &Scope{
		RunID: id,
		log:   parent.With().Str("run_id", id).Strs("argv", argv).Logger(),
		start: time.Now(),
	}
	s.log.Debug().Msg("command starting")
	return s
}

// Logger returns the scoped logger. The pointer stays valid for the life of
// the scope and picks up the pid once SetPid has run.
func (s *Scope) Logger() *zerolog.Logger { return &s.log }

// Started is the acquisition time.
func (s *Scope) Started() time.Time { return s.start }

// SetPid adds the child pid to every later entry.
func (s *Scope) SetPid(pid int) {
	s.log = s.log.With().Int("pid", pid).Logger()
}

// Release logs the outcome and elapsed time once and returns the elapsed
// time. Later calls only return the elapsed time.
func (s *Scope) Release(outcome string, err error) time.Duration {
	elapsed := time.Since(s.start)
	if !s.released.CompareAndSwap(false, true) {
		return elapsed
	}
	ev := s.log.Info()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("outcome", outcome).Dur("elapsed", elapsed).Msg("command finished")
	return elapsed
}
