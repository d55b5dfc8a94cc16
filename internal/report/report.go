// File: internal/report/report.go
// Author: momentics <momentics@gmail.com>

// Package report persists a TOML record of supervised command runs.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Run describes one finished command.
type Run struct {
	RunID     string    `toml:"run_id"`
	Argv      []string  `toml:"argv"`
	Pid       int       `toml:"pid"`
	Started   time.Time `toml:"started"`
	ElapsedMs int64     `toml:"elapsed_ms"`

	Outcome  string `toml:"outcome"`
	Success  bool   `toml:"success"`
	ExitCode int    `toml:"exit_code"`
	Signal   string `toml:"signal,omitempty"`
	Killed   bool   `toml:"killed"`
	Error    string `toml:"error,omitempty"`

	StdoutBytes  int64 `toml:"stdout_bytes"`
	StderrBytes  int64 `toml:"stderr_bytes"`
	PollTimeouts int64 `toml:"poll_timeouts"`
}

// Report is the file layout: an array of [[run]] tables.
type Report struct {
	Runs []Run `toml:"run"`
}

// Load reads path. A missing file is an empty report.
func Load(path string) (*Report, error) {
	var r Report
	if _, err := toml.DecodeFile(path, &r); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Report{}, nil
		}
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	for i, run := range r.Runs {
		if _, err := uuid.Parse(run.RunID); err != nil {
			return nil, fmt.Errorf("report %s: run %d: bad run_id %q: %w", path, i, run.RunID, err)
		}
	}
	return &r, nil
}

// Append adds run to the report at path, replacing the file atomically.
func Append(path string, run Run) error {
	r, err := Load(path)
	if err != nil {
		return err
	}
	r.Runs = append(r.Runs, run)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.toml")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
