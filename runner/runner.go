// File: runner/runner.go
// Author: momentics <momentics@gmail.com>
//
// CommandRunner: launch, drive the reactor, reap.

package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-exec/affinity"
	"github.com/momentics/hioload-exec/api"
	"github.com/momentics/hioload-exec/control"
	"github.com/momentics/hioload-exec/fdio"
	"github.com/momentics/hioload-exec/internal/logging"
	"github.com/momentics/hioload-exec/internal/report"
	"github.com/momentics/hioload-exec/process"
	"github.com/momentics/hioload-exec/reactor"
	"github.com/momentics/hioload-exec/readers"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// DefaultStdinWriteTimeout bounds how long forwarded input may wait for the
// child to accept any of it.
const DefaultStdinWriteTimeout = 10 * time.Second

// Option configures a CommandRunner.
type Option func(*options)

type options struct {
	reapTimeout       time.Duration
	stdinWriteTimeout time.Duration
	log               zerolog.Logger
	metrics           *control.Metrics
	probes            *control.DebugProbes
	procOpts          []process.Option
	cpu               int
}

// WithReapTimeout sets how long Close waits before SIGKILL.
func WithReapTimeout(d time.Duration) Option {
	return func(o *options) { o.reapTimeout = d }
}

// WithStdinWriteTimeout sets how long a forwarded chunk may sit while the
// child's stdin accepts nothing. Zero disables the limit.
func WithStdinWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.stdinWriteTimeout = d }
}

// WithLogger sets the parent logger; each run logs through a scoped child.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records every run into m.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithProbes registers pid, running and last_run probes on dp.
func WithProbes(dp *control.DebugProbes) Option {
	return func(o *options) { o.probes = dp }
}

// WithCPU pins the supervising thread, and so the child, to one CPU for the
// duration of each run. Negative disables pinning.
func WithCPU(cpu int) Option {
	return func(o *options) { o.cpu = cpu }
}

// WithProcessOptions passes spawn options (directory, environment) through.
func WithProcessOptions(opts ...process.Option) Option {
	return func(o *options) { o.procOpts = append(o.procOpts, opts...) }
}

// CommandRunner runs one command at a time; a Run started while another is
// in progress fails with an api.ErrCodeBusy error. Kill, CommandIsRunning,
// Pid and LastRun may be called from any goroutine.
type CommandRunner struct {
	readers api.ReaderPair
	opts    options
	poller  *reactor.Poller

	busy        atomic.Bool
	keepRunning atomic.Bool
	openOutputs int

	// stdin forwarding state, touched only by the reactor goroutine
	fw        *forwarder
	stallErr  error
	shortWait bool

	mu     sync.Mutex
	handle *process.Handle
	last   report.Run
}

var _ api.Processor = (*CommandRunner)(nil)

// New creates a runner delivering output to rp. A nil rp discards output.
func New(rp api.ReaderPair, opts ...Option) *CommandRunner {
	if rp == nil {
		rp = &readers.Null{}
	}
	r := &CommandRunner{
		readers: rp,
		opts: options{
			reapTimeout:       process.DefaultReapTimeout,
			stdinWriteTimeout: DefaultStdinWriteTimeout,
			log:               zerolog.Nop(),
			cpu:               -1,
		},
	}
	for _, opt := range opts {
		opt(&r.opts)
	}
	r.poller = reactor.New(r, reactor.WithLogger(r.opts.log))

	if dp := r.opts.probes; dp != nil {
		dp.RegisterProbe("pid", func() any { return r.Pid() })
		dp.RegisterProbe("running", func() any { return r.CommandIsRunning() })
		dp.RegisterProbe("last_run", func() any { return r.LastRun() })
	}
	return r
}

// Readers returns the reader pair the runner delivers to.
func (r *CommandRunner) Readers() api.ReaderPair { return r.readers }

// Run launches argv and supervises it to completion. It returns true iff the
// child exited with status 0. A non-zero exit is (false, nil); termination
// by signal is *api.ProcessSignaledError. Cancelling ctx sends SIGTERM.
func (r *CommandRunner) Run(ctx context.Context, argv []string) (bool, error) {
	return r.run(ctx, argv, nil)
}

// RunString splits cmd on spaces and runs it. No quoting is interpreted.
func (r *CommandRunner) RunString(ctx context.Context, cmd string) (bool, error) {
	return r.run(ctx, process.ParseCommand(cmd), nil)
}

// RunWithInput runs argv while streaming in to its stdin. The child's stdin
// is closed once in reaches EOF. The caller keeps ownership of in.
func (r *CommandRunner) RunWithInput(ctx context.Context, argv []string, in *fdio.AutoFd) (bool, error) {
	if in == nil {
		return false, api.ErrInvalidArgument
	}
	return r.run(ctx, argv, in)
}

func (r *CommandRunner) run(ctx context.Context, argv []string, in *fdio.AutoFd) (bool, error) {
	if len(argv) == 0 {
		return false, api.ErrEmptyCommand
	}
	if !r.busy.CompareAndSwap(false, true) {
		return false, api.NewError(api.ErrCodeBusy, "command runner already supervising a child").
			WithContext("pid", r.Pid())
	}
	defer r.busy.Store(false)

	scope := logging.Acquire(r.opts.log, argv)
	outBefore, errBefore := r.counts()
	timeoutsBefore := r.poller.Stats().Timeouts

	if r.opts.cpu >= 0 {
		restore, err := affinity.Pin(r.opts.cpu)
		if err != nil {
			r.finish(scope, nil, argv, false, err, 0, 0, 0)
			return false, err
		}
		defer func() {
			if err := restore(); err != nil {
				log := scope.Logger()
				log.Warn().Err(err).Msg("restoring cpu affinity")
			}
		}()
	}

	procOpts := append([]process.Option{process.WithLogger(*scope.Logger())}, r.opts.procOpts...)
	h, err := process.Open(argv, true, procOpts...)
	if err != nil {
		r.finish(scope, nil, argv, false, err, 0, 0, 0)
		return false, err
	}
	scope.SetPid(h.Pid)
	log := scope.Logger()
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()

	r.keepRunning.Store(true)
	r.openOutputs = 2
	r.poller.
		Add(&outputAction{r: r, fd: h.Stdout}).
		Add(&outputAction{r: r, fd: h.Stderr, stderr: true})
	r.fw, r.stallErr = nil, nil
	if in != nil {
		r.fw = newForwarder(in, h, r.opts.stdinWriteTimeout)
		inSide, stdinSide := r.fw.actions()
		r.poller.Add(inSide).Add(stdinSide)
	} else if err := h.CloseStdin(); err != nil {
		log.Debug().Err(err).Msg("closing unused stdin")
	}

	stop := context.AfterFunc(ctx, func() {
		log.Info().Msg("context done, sending SIGTERM")
		_ = h.Kill(unix.SIGTERM)
	})

	runErr := r.process(*log)
	cancelled := !stop()
	r.poller.Reset()

	ok, closeErr := h.Close(r.opts.reapTimeout)
	err = errors.Join(runErr, closeErr)
	if cancelled {
		err = errors.Join(err, context.Cause(ctx))
	}

	outAfter, errAfter := r.counts()
	r.finish(scope, h, argv, ok, err, outAfter-outBefore, errAfter-errBefore,
		r.poller.Stats().Timeouts-timeoutsBefore)
	return ok, err
}

// process drives the reactor. A failure inside an action asks the child to
// terminate and is returned to the caller; the reap still runs.
func (r *CommandRunner) process(log zerolog.Logger) error {
	err := r.poller.Run()
	if err == nil {
		err = r.stallErr
	}
	if err != nil {
		log.Warn().Err(err).Msg("reactor failed, sending SIGTERM")
		if kerr := r.Kill(unix.SIGTERM); kerr != nil {
			log.Debug().Err(kerr).Msg("SIGTERM not delivered")
		}
	}
	return err
}

func (r *CommandRunner) outputClosed() {
	r.openOutputs--
	if r.openOutputs <= 0 {
		r.keepRunning.Store(false)
	}
}

func (r *CommandRunner) counts() (int64, int64) {
	if c, ok := r.readers.(api.ByteCounter); ok {
		return c.Counts()
	}
	return 0, 0
}

func (r *CommandRunner) finish(scope *logging.Scope, h *process.Handle, argv []string,
	ok bool, err error, stdout, stderr int64, timeouts uint64) {

	out := outcome(ok, err)
	elapsed := scope.Release(out, err)

	run := report.Run{
		RunID:        scope.RunID,
		Argv:         append([]string(nil), argv...),
		Started:      scope.Started(),
		ElapsedMs:    elapsed.Milliseconds(),
		Outcome:      out,
		Success:      ok,
		StdoutBytes:  stdout,
		StderrBytes:  stderr,
		PollTimeouts: int64(timeouts),
	}
	if err != nil {
		run.Error = err.Error()
	}
	if h != nil {
		info := h.Exit()
		run.Pid = info.Pid
		run.ExitCode = info.ExitCode
		run.Killed = info.Killed
		if info.Signaled {
			run.Signal = unix.SignalName(info.Signal)
		}
	}

	r.mu.Lock()
	r.last = run
	r.mu.Unlock()

	r.opts.metrics.RecordRun(out, stdout, stderr, timeouts, run.Killed, elapsed)
}

func outcome(ok bool, err error) string {
	var sig *api.ProcessSignaledError
	switch {
	case errors.As(err, &sig):
		return control.OutcomeSignaled
	case err != nil:
		return control.OutcomeError
	case ok:
		return control.OutcomeSuccess
	default:
		return control.OutcomeFailure
	}
}

// PollTimeout is the reader pair's wait, shortened so a stalled stdin chunk
// is noticed on time.
func (r *CommandRunner) PollTimeout() int {
	t := r.readers.PollTimeout()
	r.shortWait = false
	if r.fw == nil {
		return t
	}
	if rem, ok := r.fw.stallBudget(); ok {
		ms := int((rem + time.Millisecond - 1) / time.Millisecond)
		if t < 0 || ms < t {
			t, r.shortWait = ms, true
		}
	}
	return t
}

// TimeoutHook delegates to the reader pair unless the wait was one the
// runner shortened for stdin forwarding.
func (r *CommandRunner) TimeoutHook() bool {
	if r.stdinStalled() {
		return false
	}
	if r.shortWait {
		return true
	}
	return r.readers.TimeoutHook()
}

// KeepRunning is false once both output streams are closed, Stop was called
// or forwarded input stalled.
func (r *CommandRunner) KeepRunning() bool {
	return !r.stdinStalled() && r.keepRunning.Load()
}

func (r *CommandRunner) stdinStalled() bool {
	if r.fw == nil || !r.fw.stalled() {
		return false
	}
	if r.stallErr == nil {
		r.stallErr = r.fw.stallError()
	}
	return true
}

// Stop ends the current run after the cycle in progress. The child is still
// reaped under the reap timeout.
func (r *CommandRunner) Stop() { r.keepRunning.Store(false) }

// Kill signals the current child. It fails with api.ErrNotStarted before the
// first launch and api.ErrAlreadyReaped once the child has been reaped.
func (r *CommandRunner) Kill(sig unix.Signal) error {
	r.mu.Lock()
	h := r.handle
	r.mu.Unlock()
	if h == nil {
		return api.ErrNotStarted
	}
	return h.Kill(sig)
}

// CommandIsRunning probes the child with signal 0.
func (r *CommandRunner) CommandIsRunning() bool {
	return r.Kill(0) == nil
}

// Pid returns the pid of the current or last child, 0 before the first launch.
func (r *CommandRunner) Pid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil {
		return 0
	}
	return r.handle.Pid
}

// ClearReaders resets the reader pair between runs.
func (r *CommandRunner) ClearReaders() { r.readers.Clear() }

// ReaderError returns what the reader pair recorded from stderr.
func (r *CommandRunner) ReaderError() string { return r.readers.ErrorString() }

// LastRun returns the record of the most recent run.
func (r *CommandRunner) LastRun() report.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.last
	run.Argv = append([]string(nil), run.Argv...)
	return run
}
