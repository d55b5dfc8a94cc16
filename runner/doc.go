// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package runner supervises one child process at a time: it launches the
// command over three pipes, drives its stdout, stderr and optional stdin
// through a poll reactor into a caller-chosen api.ReaderPair, and reaps the
// child under a bounded wait that escalates to SIGKILL.
package runner
