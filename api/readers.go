// File: api/readers.go
// Author: momentics <momentics@gmail.com>
//
// Capture destination contract for a supervised command.

package api

// ReaderPair receives a supervised child's output. Cin and Cerr are called
// with the readable stdout/stderr pipe descriptor and must consume from it;
// false (EOF) deregisters the stream.
type ReaderPair interface {
	Cin(fd int) (bool, error)
	Cerr(fd int) (bool, error)

	// PollTimeout is the reactor wait in milliseconds, negative for forever.
	PollTimeout() int

	// TimeoutHook is called when a wait expires; false aborts the run.
	TimeoutHook() bool

	Clear()
	ErrorString() string
}

// ByteCounter is implemented by readers that track how much they consumed.
type ByteCounter interface {
	Counts() (stdout, stderr int64)
}
