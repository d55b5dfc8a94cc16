// File: fdio/factory.go
// Author: momentics <momentics@gmail.com>

package fdio

import (
	"syscall"

	"github.com/momentics/hioload-exec/api"
	"golang.org/x/sys/unix"
)

// Open opens path with O_CLOEXEC added to flags.
func Open(path string, flags int, perm uint32) (*AutoFd, error) {
	for {
		fd, err := unix.Open(path, flags|unix.O_CLOEXEC, perm)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, api.NewSystemCallError("open", err)
		}
		return New(fd), nil
	}
}

// Pipe returns the read and write ends of a new close-on-exec pipe.
func Pipe() (r, w *AutoFd, err error) {
	var p [2]int
	syscall.ForkLock.RLock()
	err = unix.Pipe(p[:])
	if err == nil {
		unix.CloseOnExec(p[0])
		unix.CloseOnExec(p[1])
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return nil, nil, api.NewSystemCallError("pipe", err)
	}
	return New(p[0]), New(p[1]), nil
}

// Dup duplicates fd into a new, independently owned close-on-exec descriptor.
func Dup(fd int) (*AutoFd, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, api.NewSystemCallError("fcntl", err)
	}
	return New(nfd), nil
}

// Socket creates a close-on-exec socket.
func Socket(domain, typ, proto int) (*AutoFd, error) {
	syscall.ForkLock.RLock()
	fd, err := unix.Socket(domain, typ, proto)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return nil, api.NewSystemCallError("socket", err)
	}
	return New(fd), nil
}
