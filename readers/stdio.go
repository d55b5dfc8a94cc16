// File: readers/stdio.go
// Author: momentics <momentics@gmail.com>

package readers

import (
	"io"
	"os"

	"github.com/momentics/hioload-exec/api"
)

// Stdio echoes the child's streams to Out and Err (our own stdout and stderr
// by default) and also records stderr for ErrorString.
type Stdio struct {
	Base
	counter

	Out io.Writer
	Err io.Writer

	stderr lockedBuffer
}

var _ api.ReaderPair = (*Stdio)(nil)

// NewStdio echoes to os.Stdout and os.Stderr.
func NewStdio() *Stdio {
	return &Stdio{Out: os.Stdout, Err: os.Stderr}
}

func (r *Stdio) Cin(fd int) (bool, error) {
	return pump(fd, &r.outN, func(p []byte) error {
		_, err := r.Out.Write(p)
		return err
	})
}

func (r *Stdio) Cerr(fd int) (bool, error) {
	return pump(fd, &r.errN, func(p []byte) error {
		_ = r.stderr.Write(p)
		_, err := r.Err.Write(p)
		return err
	})
}

func (r *Stdio) Clear() {
	r.stderr.Reset()
	r.counter.reset()
}

func (r *Stdio) ErrorString() string { return string(r.stderr.Bytes()) }
