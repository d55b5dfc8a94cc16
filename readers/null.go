// File: readers/null.go
// Author: momentics <momentics@gmail.com>

package readers

import "github.com/momentics/hioload-exec/api"

// Null drains and discards both streams.
type Null struct {
	Base
	counter
}

var _ api.ReaderPair = (*Null)(nil)

func discard([]byte) error { return nil }

func (r *Null) Cin(fd int) (bool, error) { return pump(fd, &r.outN, discard) }

func (r *Null) Cerr(fd int) (bool, error) { return pump(fd, &r.errN, discard) }

func (r *Null) ErrorString() string { return "" }
