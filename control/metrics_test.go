package control_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-exec/control"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	m := control.NewMetrics()
	m.RecordRun(control.OutcomeSuccess, 10, 2, 0, false, 20*time.Millisecond)
	m.RecordRun(control.OutcomeSignaled, 5, 0, 3, true, time.Second)

	if got := testutil.ToFloat64(m.Commands().WithLabelValues(control.OutcomeSuccess)); got != 1 {
		t.Fatalf("success = %v", got)
	}
	if got := testutil.ToFloat64(m.Bytes().WithLabelValues("stdout")); got != 15 {
		t.Fatalf("stdout bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.ReapKills()); got != 1 {
		t.Fatalf("reap kills = %v", got)
	}
	if got := testutil.ToFloat64(m.PollTimeouts()); got != 3 {
		t.Fatalf("poll timeouts = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *control.Metrics
	m.RecordRun(control.OutcomeError, 1, 1, 1, true, time.Millisecond)
}

func TestWriteTextfile(t *testing.T) {
	m := control.NewMetrics()
	m.RecordRun(control.OutcomeFailure, 0, 0, 0, false, time.Millisecond)
	path := filepath.Join(t.TempDir(), "procrun.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `procrun_commands_total{outcome="failure"} 1`) {
		t.Fatalf("textfile missing counter:\n%s", data)
	}
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("pid", func() any { return 42 })
	dp.RegisterProbe("running", func() any { return false })
	if names := dp.Names(); len(names) != 2 || names[0] != "pid" {
		t.Fatalf("names = %v", names)
	}
	state := dp.DumpState()
	if state["pid"] != 42 || state["running"] != false {
		t.Fatalf("state = %v", state)
	}
}
