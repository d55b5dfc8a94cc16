// File: readers/streams.go
// Author: momentics <momentics@gmail.com>
//
// In-memory capture of both streams.

package readers

import (
	"github.com/momentics/hioload-exec/api"
)

// Streams accumulates stdout and stderr in memory.
type Streams struct {
	Base
	counter

	stdout lockedBuffer
	stderr lockedBuffer
}

var _ api.ReaderPair = (*Streams)(nil)

// NewStreams returns an empty in-memory reader.
func NewStreams() *Streams { return &Streams{} }

func (s *Streams) Cin(fd int) (bool, error) { return pump(fd, &s.outN, s.stdout.Write) }

func (s *Streams) Cerr(fd int) (bool, error) { return pump(fd, &s.errN, s.stderr.Write) }

// Stdout returns a copy of the captured stdout.
func (s *Streams) Stdout() []byte { return s.stdout.Bytes() }

// Stderr returns a copy of the captured stderr.
func (s *Streams) Stderr() []byte { return s.stderr.Bytes() }

func (s *Streams) HasOutput() bool { return s.stdout.Len() > 0 }

func (s *Streams) HasErrors() bool { return s.stderr.Len() > 0 }

// Clear drops everything captured so far.
func (s *Streams) Clear() {
	s.stdout.Reset()
	s.stderr.Reset()
	s.counter.reset()
}

func (s *Streams) ErrorString() string { return string(s.stderr.Bytes()) }
