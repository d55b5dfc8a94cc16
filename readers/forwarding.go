// File: readers/forwarding.go
// Author: momentics <momentics@gmail.com>

package readers

import (
	"github.com/momentics/hioload-exec/api"
	"github.com/momentics/hioload-exec/fdio"
)

// Forwarding copies stdout to another descriptor and keeps stderr in memory.
// Peek, when set, sees every stdout chunk before it is forwarded.
type Forwarding struct {
	Base
	counter

	Out  *fdio.AutoFd
	Peek func(chunk []byte)

	stderr lockedBuffer
}

var _ api.ReaderPair = (*Forwarding)(nil)

// NewForwarding forwards stdout to out. The reader shares ownership of out.
func NewForwarding(out *fdio.AutoFd) *Forwarding {
	return &Forwarding{Out: out.Share()}
}

func (r *Forwarding) Cin(fd int) (bool, error) {
	return pump(fd, &r.outN, func(p []byte) error {
		if r.Peek != nil {
			r.Peek(p)
		}
		_, err := r.Out.Write(p)
		return err
	})
}

func (r *Forwarding) Cerr(fd int) (bool, error) { return pump(fd, &r.errN, r.stderr.Write) }

func (r *Forwarding) HasErrors() bool { return r.stderr.Len() > 0 }

func (r *Forwarding) ErrorString() string { return string(r.stderr.Bytes()) }

// Close releases the reader's share of the output descriptor.
func (r *Forwarding) Close() error { return r.Out.Close() }
