package report_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/hioload-exec/internal/report"
)

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.toml")
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first := report.Run{
		RunID: uuid.NewString(), Argv: []string{"/bin/echo", "hi"}, Pid: 10,
		Started: started, ElapsedMs: 3, Outcome: "success", Success: true, StdoutBytes: 3,
	}
	second := report.Run{
		RunID: uuid.NewString(), Argv: []string{"/bin/sleep", "30"}, Pid: 11,
		Started: started, Outcome: "signaled", Signal: "SIGKILL", Killed: true,
		Error: "child 11 terminated with signal 9 (SIGKILL)",
	}
	if err := report.Append(path, first); err != nil {
		t.Fatal(err)
	}
	if err := report.Append(path, second); err != nil {
		t.Fatal(err)
	}

	r, err := report.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Runs) != 2 {
		t.Fatalf("got %d runs", len(r.Runs))
	}
	if r.Runs[0].RunID != first.RunID || !r.Runs[0].Started.Equal(started) || r.Runs[0].Argv[1] != "hi" {
		t.Fatalf("first run = %+v", r.Runs[0])
	}
	if !r.Runs[1].Killed || r.Runs[1].Signal != "SIGKILL" {
		t.Fatalf("second run = %+v", r.Runs[1])
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	r, err := report.Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil || len(r.Runs) != 0 {
		t.Fatalf("Load() = %+v, %v", r, err)
	}
}

func TestLoadRejectsBadRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[[run]]\nrun_id = \"nope\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := report.Load(path); err == nil {
		t.Fatal("expected error for malformed run id")
	}
}
