// File: reactor/events.go
// Author: momentics <momentics@gmail.com>

package reactor

import "golang.org/x/sys/unix"

// Readiness masks used by actions.
const (
	EventIn  int16 = unix.POLLIN
	EventPri int16 = unix.POLLPRI
	EventOut int16 = unix.POLLOUT

	// ErrorEvents route a descriptor to the error pass.
	ErrorEvents int16 = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL
)
