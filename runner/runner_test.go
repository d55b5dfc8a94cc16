package runner_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/hioload-exec/affinity"
	"github.com/momentics/hioload-exec/api"
	"github.com/momentics/hioload-exec/control"
	"github.com/momentics/hioload-exec/fdio"
	"github.com/momentics/hioload-exec/readers"
	"github.com/momentics/hioload-exec/runner"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sys/unix"
)

func TestEchoCapturedInMemory(t *testing.T) {
	out := readers.NewStreams()
	metrics := control.NewMetrics()
	r := runner.New(out, runner.WithMetrics(metrics))

	ok, err := r.RunString(context.Background(), "/bin/echo hello")
	if err != nil || !ok {
		t.Fatalf("Run() = %v, %v", ok, err)
	}
	if string(out.Stdout()) != "hello\n" {
		t.Fatalf("stdout = %q", out.Stdout())
	}
	if out.HasErrors() {
		t.Fatalf("stderr = %q", out.Stderr())
	}
	if got := testutil.ToFloat64(metrics.Commands().WithLabelValues(control.OutcomeSuccess)); got != 1 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(metrics.Bytes().WithLabelValues("stdout")); got != 6 {
		t.Fatalf("stdout bytes = %v", got)
	}
	last := r.LastRun()
	if last.RunID == "" || last.Pid == 0 || last.Outcome != control.OutcomeSuccess || last.StdoutBytes != 6 {
		t.Fatalf("last run = %+v", last)
	}
	if r.CommandIsRunning() {
		t.Fatal("reaped child reported as running")
	}
}

func TestSilentSuccessObservesNothing(t *testing.T) {
	out := readers.NewStreams()
	ok, err := runner.New(out).Run(context.Background(), []string{"/bin/sh", "-c", "exit 0"})
	if err != nil || !ok {
		t.Fatalf("Run() = %v, %v", ok, err)
	}
	if o, e := out.Counts(); o != 0 || e != 0 {
		t.Fatalf("counts = %d/%d", o, e)
	}
}

func TestStderrCaptured(t *testing.T) {
	out := readers.NewStreams()
	r := runner.New(out)
	ok, err := r.Run(context.Background(), []string{"/bin/sh", "-c", "echo oops >&2"})
	if err != nil || !ok {
		t.Fatalf("Run() = %v, %v", ok, err)
	}
	if r.ReaderError() != "oops\n" {
		t.Fatalf("ReaderError() = %q", r.ReaderError())
	}
	r.ClearReaders()
	if r.ReaderError() != "" {
		t.Fatal("ClearReaders kept stderr")
	}
}

func TestNonZeroExitIsFalseWithoutError(t *testing.T) {
	r := runner.New(nil)
	ok, err := r.Run(context.Background(), []string{"/bin/sh", "-c", "exit 3"})
	if ok || err != nil {
		t.Fatalf("Run() = %v, %v", ok, err)
	}
	if last := r.LastRun(); last.ExitCode != 3 || last.Outcome != control.OutcomeFailure {
		t.Fatalf("last run = %+v", last)
	}
}

func TestSelfSignalReportsTERM(t *testing.T) {
	_, err := runner.New(nil).Run(context.Background(), []string{"/bin/sh", "-c", "kill -TERM $$"})
	var sig *api.ProcessSignaledError
	if !errors.As(err, &sig) || sig.Signal != unix.SIGTERM {
		t.Fatalf("err = %v", err)
	}
}

func TestForwardedInputRoundTrips(t *testing.T) {
	payload := make([]byte, 10<<20)
	rand.New(rand.NewSource(7)).Read(payload)
	path := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatal(err)
	}
	in, err := fdio.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()

	out := readers.NewStreams()
	ok, err := runner.New(out).RunWithInput(context.Background(), []string{"/bin/cat"}, in)
	if err != nil || !ok {
		t.Fatalf("RunWithInput() = %v, %v", ok, err)
	}
	if !bytes.Equal(out.Stdout(), payload) {
		t.Fatalf("output differs: got %d bytes, want %d", len(out.Stdout()), len(payload))
	}
}

func inputFile(t *testing.T, size int) *fdio.AutoFd {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(path, make([]byte, size), 0o600); err != nil {
		t.Fatal(err)
	}
	in, err := fdio.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func TestOutputFlowsWhileStdinIsFull(t *testing.T) {
	// the child writes all of its output before it reads any input
	argv := []string{"/bin/sh", "-c", "head -c 4000000 /dev/zero; cat >/dev/null"}
	out := readers.NewStreams()
	r := runner.New(out, runner.WithStdinWriteTimeout(2*time.Second))

	start := time.Now()
	ok, err := r.RunWithInput(context.Background(), argv, inputFile(t, 1<<20))
	if err != nil || !ok {
		t.Fatalf("RunWithInput() = %v, %v after %v", ok, err, time.Since(start))
	}
	if n := len(out.Stdout()); n != 4000000 {
		t.Fatalf("captured %d stdout bytes, want 4000000", n)
	}
}

func TestStalledStdinTerminatesChild(t *testing.T) {
	r := runner.New(nil,
		runner.WithStdinWriteTimeout(200*time.Millisecond),
		runner.WithReapTimeout(2*time.Second))

	start := time.Now()
	ok, err := r.RunWithInput(context.Background(), []string{"/bin/sleep", "30"}, inputFile(t, 1<<20))
	if ok {
		t.Fatal("stalled run reported success")
	}
	var te *api.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *api.TimeoutError", err)
	}
	if te.Written == 0 {
		t.Fatal("nothing reached the pipe before the stall")
	}
	var sig *api.ProcessSignaledError
	if !errors.As(err, &sig) || sig.Signal != unix.SIGTERM {
		t.Fatalf("err = %v, want SIGTERM termination", err)
	}
	if d := time.Since(start); d > 10*time.Second {
		t.Fatalf("stall noticed after %v", d)
	}
}

func TestUnusedStdinIsClosed(t *testing.T) {
	out := readers.NewStreams()
	ok, err := runner.New(out).Run(context.Background(), []string{"/bin/cat"})
	if err != nil || !ok {
		t.Fatalf("Run() = %v, %v", ok, err)
	}
}

func TestRunWithInputRejectsNil(t *testing.T) {
	if _, err := runner.New(nil).RunWithInput(context.Background(), []string{"/bin/cat"}, nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}

func TestExternalKill(t *testing.T) {
	r := runner.New(nil)
	if err := r.Kill(unix.SIGTERM); !errors.Is(err, api.ErrNotStarted) {
		t.Fatalf("Kill before launch = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), []string{"/bin/sleep", "30"})
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !r.CommandIsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("child never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := r.Kill(unix.SIGTERM); err != nil {
		t.Fatal(err)
	}

	err := <-done
	var sig *api.ProcessSignaledError
	if !errors.As(err, &sig) || sig.Signal != unix.SIGTERM {
		t.Fatalf("err = %v", err)
	}
	if err := r.Kill(unix.SIGTERM); !errors.Is(err, api.ErrAlreadyReaped) {
		t.Fatalf("Kill after reap = %v", err)
	}
}

func TestIdleAbortEscalatesToKill(t *testing.T) {
	idle := readers.NewIdle(readers.NewStreams(), 20, 3)
	metrics := control.NewMetrics()
	r := runner.New(idle, runner.WithReapTimeout(100*time.Millisecond), runner.WithMetrics(metrics))

	start := time.Now()
	_, err := r.Run(context.Background(), []string{"/bin/sleep", "30"})
	if time.Since(start) > 5*time.Second {
		t.Fatalf("run took %v", time.Since(start))
	}
	var sig *api.ProcessSignaledError
	if !errors.As(err, &sig) || sig.Signal != unix.SIGKILL {
		t.Fatalf("err = %v", err)
	}
	if !idle.Expired() {
		t.Fatal("idle limit not reported")
	}
	last := r.LastRun()
	if !last.Killed || last.Signal != "SIGKILL" || last.PollTimeouts != 3 {
		t.Fatalf("last run = %+v", last)
	}
	if got := testutil.ToFloat64(metrics.ReapKills()); got != 1 {
		t.Fatalf("reap kills = %v", got)
	}
}

func TestMissingExecutable(t *testing.T) {
	metrics := control.NewMetrics()
	r := runner.New(nil, runner.WithMetrics(metrics))
	ok, err := r.Run(context.Background(), []string{"/nonexistent/procrun-test"})
	var sc *api.SystemCallError
	if ok || !errors.As(err, &sc) || sc.Call != "execve" || sc.Errno != unix.ENOENT {
		t.Fatalf("Run() = %v, %v", ok, err)
	}
	if got := testutil.ToFloat64(metrics.Commands().WithLabelValues(control.OutcomeError)); got != 1 {
		t.Fatalf("error count = %v", got)
	}
}

func TestEmptyCommand(t *testing.T) {
	if _, err := runner.New(nil).RunString(context.Background(), "   "); !errors.Is(err, api.ErrEmptyCommand) {
		t.Fatalf("err = %v", err)
	}
}

func TestContextCancelTerminates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := runner.New(nil).Run(ctx, []string{"/bin/sleep", "30"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	var sig *api.ProcessSignaledError
	if !errors.As(err, &sig) || sig.Signal != unix.SIGTERM {
		t.Fatalf("err = %v", err)
	}
}

// panicking fails on the first stdout chunk.
type panicking struct{ readers.Null }

func (p *panicking) Cin(int) (bool, error) { panic("reader exploded") }

func TestActionFailureTerminatesChild(t *testing.T) {
	r := runner.New(&panicking{}, runner.WithReapTimeout(5*time.Second))
	_, err := r.Run(context.Background(), []string{"/bin/sh", "-c", "echo x; exec sleep 30"})

	var ae *api.ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want action error", err)
	}
	var sig *api.ProcessSignaledError
	if !errors.As(err, &sig) || sig.Signal != unix.SIGTERM {
		t.Fatalf("err = %v, want SIGTERM termination", err)
	}
}

func TestProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	r := runner.New(nil, runner.WithProbes(dp))
	if _, err := r.RunString(context.Background(), "/bin/echo probe"); err != nil {
		t.Fatal(err)
	}
	state := dp.DumpState()
	if state["pid"] != r.Pid() || state["running"] != false {
		t.Fatalf("state = %v", state)
	}
}

func TestPinnedRunConstrainsChild(t *testing.T) {
	cpus, err := affinity.Current()
	if err != nil {
		t.Skipf("affinity unavailable: %v", err)
	}
	out := readers.NewStreams()
	r := runner.New(out, runner.WithCPU(cpus[0]))
	ok, err := r.Run(context.Background(), []string{"/bin/sh", "-c", "grep Cpus_allowed_list /proc/self/status"})
	if err != nil || !ok {
		t.Fatalf("Run() = %v, %v", ok, err)
	}
	want := fmt.Sprintf("Cpus_allowed_list:\t%d\n", cpus[0])
	if string(out.Stdout()) != want {
		t.Fatalf("child mask = %q, want %q", out.Stdout(), want)
	}
}

func TestConcurrentRunIsBusy(t *testing.T) {
	r := runner.New(nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background(), []string{"/bin/sleep", "30"})
	}()
	deadline := time.Now().Add(5 * time.Second)
	for !r.CommandIsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("child never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := r.Run(context.Background(), []string{"/bin/true"})
	if api.CodeOf(err) != api.ErrCodeBusy {
		t.Fatalf("err = %v, want busy", err)
	}
	_ = r.Kill(unix.SIGKILL)
	<-done
}
