// File: process/process.go
// Author: momentics <momentics@gmail.com>
//
// popen-style spawn over pipe/fork/exec.

package process

import (
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/momentics/hioload-exec/api"
	"github.com/momentics/hioload-exec/fdio"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Option configures Open.
type Option func(*options)

type options struct {
	dir string
	env []string
	log zerolog.Logger
}

// WithDir sets the child's working directory.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithEnv replaces the child's environment. By default it inherits ours.
func WithEnv(env []string) Option {
	return func(o *options) { o.env = env }
}

// WithLogger sets the logger for reap escalation messages.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Handle is a launched child and the parent's ends of its pipes: the write
// end of stdin and the read ends of stdout and stderr.
type Handle struct {
	Pid    int
	Stdin  *fdio.AutoFd
	Stdout *fdio.AutoFd
	Stderr *fdio.AutoFd

	log zerolog.Logger

	mu      sync.Mutex
	reaped  bool
	status  unix.WaitStatus
	killed  bool
	waiting atomic.Bool
}

// ParseCommand splits cmd on single spaces. No quoting is interpreted.
func ParseCommand(cmd string) []string {
	var argv []string
	for _, tok := range strings.Split(cmd, " ") {
		if tok != "" {
			argv = append(argv, tok)
		}
	}
	return argv
}

// Open spawns argv[0] with argv as its arguments. argv[0] is used as the path
// as given; there is no PATH search and no shell. With nonBlocking the
// stdout and stderr read ends are switched to non-blocking mode; stdin stays
// blocking.
//
// An exec failure (missing or non-executable argv[0], bad directory) is
// reported synchronously as *api.SystemCallError with Call "execve" and no
// child is left behind. It never shows up as a child exiting with status
// 127, so callers that only inspect exit codes must check Open's error.
func Open(argv []string, nonBlocking bool, opts ...Option) (*Handle, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, api.ErrEmptyCommand
	}
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.env == nil {
		o.env = os.Environ()
	}

	var owned []*fdio.AutoFd
	fail := func(err error) (*Handle, error) {
		for _, f := range owned {
			_ = f.Close()
		}
		return nil, err
	}

	inR, inW, err := fdio.Pipe()
	if err != nil {
		return fail(err)
	}
	owned = append(owned, inR, inW)
	outR, outW, err := fdio.Pipe()
	if err != nil {
		return fail(err)
	}
	owned = append(owned, outR, outW)
	errR, errW, err := fdio.Pipe()
	if err != nil {
		return fail(err)
	}
	owned = append(owned, errR, errW)

	if nonBlocking {
		if err := outR.SetBlocking(false); err != nil {
			return fail(err)
		}
		if err := errR.SetBlocking(false); err != nil {
			return fail(err)
		}
	}

	attr := &syscall.ProcAttr{
		Dir:   o.dir,
		Env:   o.env,
		Files: []uintptr{uintptr(inR.FD()), uintptr(outW.FD()), uintptr(errW.FD())},
	}
	pid, err := syscall.ForkExec(argv[0], argv, attr)
	if err != nil {
		return fail(api.NewSystemCallError("execve", err))
	}

	// the child holds its own copies now
	var closeErr error
	for _, f := range []*fdio.AutoFd{inR, outW, errW} {
		closeErr = errors.Join(closeErr, f.Close())
	}
	if closeErr != nil {
		o.log.Warn().Err(closeErr).Int("pid", pid).Msg("closing child pipe ends")
	}

	o.log.Debug().Int("pid", pid).Strs("argv", argv).Msg("spawned")
	return &Handle{
		Pid:    pid,
		Stdin:  inW,
		Stdout: outR,
		Stderr: errR,
		log:    o.log,
	}, nil
}

// Kill sends sig to the child. Signal 0 probes for existence. A reaped child
// is never signalled, so a recycled pid cannot be hit.
func (h *Handle) Kill(sig unix.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reaped {
		return api.ErrAlreadyReaped
	}
	if err := unix.Kill(h.Pid, sig); err != nil {
		return api.NewSystemCallError("kill", err)
	}
	return nil
}

// Alive reports whether the child has not been reaped yet.
func (h *Handle) Alive() bool {
	return h.Kill(0) == nil
}

// CloseStdin closes the parent's end of the child's stdin.
func (h *Handle) CloseStdin() error {
	return h.Stdin.Close()
}

// closeFDs releases the three parent-side descriptors.
func (h *Handle) closeFDs() error {
	return errors.Join(h.Stdin.Close(), h.Stdout.Close(), h.Stderr.Close())
}
