package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/momentics/hioload-exec/internal/config"
	"github.com/momentics/hioload-exec/internal/logging"
	"github.com/rs/zerolog"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("bad log line %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestScopeCarriesRunContext(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, "procrun", zerolog.DebugLevel)

	s := logging.Acquire(log, []string{"/bin/true"})
	s.SetPid(1234)
	s.Release("success", nil)
	s.Release("ignored", errors.New("second release"))

	entries := lines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	last := entries[1]
	if last["run_id"] != s.RunID || last["pid"] != float64(1234) || last["outcome"] != "success" {
		t.Fatalf("unexpected entry %v", last)
	}
	if last["app"] != "procrun" {
		t.Fatalf("app field missing: %v", last)
	}
}

func TestScopeLoggerFollowsPid(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, "procrun", zerolog.DebugLevel)

	s := logging.Acquire(log, []string{"/bin/true"})
	scoped := s.Logger()
	s.SetPid(77)
	scoped.Warn().Msg("after pid")
	s.Logger().Debug().Msg("direct")

	entries := lines(t, &buf)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for _, e := range entries[1:] {
		if e["pid"] != float64(77) || e["run_id"] != s.RunID {
			t.Fatalf("entry lacks run context: %v", e)
		}
	}
}

func TestScopeReleaseWithErrorWarns(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, "procrun", zerolog.InfoLevel)
	logging.Acquire(log, []string{"x"}).Release("error", errors.New("boom"))

	entries := lines(t, &buf)
	if len(entries) != 1 || entries[0]["level"] != "warn" || entries[0]["error"] != "boom" {
		t.Fatalf("entries = %v", entries)
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := logging.ParseLevel(""); err != nil || l != zerolog.InfoLevel {
		t.Fatalf("empty level = %v, %v", l, err)
	}
	if _, err := logging.ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procrun.log")
	res, err := logging.Setup("procrun", config.LogConfig{Level: "info", File: path}, os.Stderr)
	if err != nil {
		t.Fatal(err)
	}
	res.Logger.Info().Msg("hello")
	if err := res.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Fatalf("log file = %s", data)
	}
}
