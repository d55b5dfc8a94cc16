package api_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/momentics/hioload-exec/api"
	"golang.org/x/sys/unix"
)

func TestSystemCallErrorCarriesErrno(t *testing.T) {
	err := fmt.Errorf("spawn: %w", api.NewSystemCallError("execve", unix.ENOENT))
	if !errors.Is(err, unix.ENOENT) {
		t.Fatalf("errno lost: %v", err)
	}
	var sc *api.SystemCallError
	if !errors.As(err, &sc) || sc.Call != "execve" {
		t.Fatalf("As failed: %v", err)
	}
	if api.CodeOf(err) != api.ErrCodeSystemCall {
		t.Fatalf("code = %v", api.CodeOf(err))
	}
}

func TestSystemCallErrorWithoutErrnoIsEIO(t *testing.T) {
	if sc := api.NewSystemCallError("read", errors.New("opaque")); sc.Errno != unix.EIO {
		t.Fatalf("errno = %v", sc.Errno)
	}
}

func TestTimeoutErrorIsETIMEDOUT(t *testing.T) {
	err := &api.TimeoutError{Op: "write", TimeoutMs: 5, Written: 10}
	if !errors.Is(err, unix.ETIMEDOUT) {
		t.Fatal("TimeoutError should unwrap to ETIMEDOUT")
	}
}

func TestPollErrorHangup(t *testing.T) {
	e := &api.PollError{FD: 3, Requested: unix.POLLIN, Returned: unix.POLLHUP}
	if !e.Hangup() {
		t.Fatal("hangup not reported")
	}
	if (&api.PollError{Returned: unix.POLLNVAL}).Hangup() {
		t.Fatal("POLLNVAL is not a hangup")
	}
}

func TestActionErrorUnwraps(t *testing.T) {
	inner := &api.ProcessSignaledError{Pid: 1, Signal: unix.SIGTERM}
	err := &api.ActionError{FD: 4, Kind: api.ErrorPath, Err: inner}
	var sig *api.ProcessSignaledError
	if !errors.As(err, &sig) || sig.Signal != unix.SIGTERM {
		t.Fatalf("As failed: %v", err)
	}
	// the outermost coded error wins
	if api.CodeOf(err) != api.ErrCodeAction {
		t.Fatalf("code = %v", api.CodeOf(err))
	}
}

func TestCodeOf(t *testing.T) {
	if api.CodeOf(nil) != api.ErrCodeOK {
		t.Fatal("nil should be ok")
	}
	if api.CodeOf(api.ErrEmptyCommand) != api.ErrCodeInternal {
		t.Fatal("uncoded errors map to internal")
	}
	e := api.NewError(api.ErrCodeTimeout, "reap").WithContext("pid", 7)
	if api.CodeOf(e) != api.ErrCodeTimeout || e.Error() != "reap (context: map[pid:7])" {
		t.Fatalf("structured error = %q code %v", e.Error(), api.CodeOf(e))
	}
}
