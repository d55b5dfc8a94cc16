// File: cmd/procrun/flags.go
// Author: momentics <momentics@gmail.com>

package main

// Flag names and the config keys they bind to.
const (
	FlagConfig      = "config"
	FlagLogLevel    = "log-level"
	FlagLogFile     = "log-file"
	FlagInput       = "input"
	FlagCapture     = "capture"
	FlagOutFile     = "out-file"
	FlagDir         = "dir"
	FlagCPU         = "cpu"
	FlagPollTimeout = "poll-timeout"
	FlagIdleLimit   = "idle-limit"
	FlagReapTimeout = "reap-timeout"
	FlagStdinWrite  = "stdin-write-timeout"
	FlagReport      = "report"
	FlagMetricsFile = "metrics-file"
)

var flagKeys = map[string]string{
	FlagConfig:      "config",
	FlagLogLevel:    "log.level",
	FlagLogFile:     "log.file",
	FlagCapture:     "capture",
	FlagOutFile:     "out_file",
	FlagDir:         "dir",
	FlagCPU:         "cpu",
	FlagPollTimeout: "poll_timeout_ms",
	FlagIdleLimit:   "idle_limit",
	FlagReapTimeout: "reap_timeout",
	FlagStdinWrite:  "stdin_write_timeout_ms",
	FlagReport:      "report_path",
	FlagMetricsFile: "metrics_file",
}

// Process exit statuses.
const (
	exitOK      = 0
	exitFailure = 1 // child exited non-zero
	exitError   = 2 // launch, supervision or signal termination
)
