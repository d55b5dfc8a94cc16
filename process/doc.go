// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package process launches a command wired to three pipes and reaps it under
// a bounded wait that escalates to SIGKILL.
//
// A Handle must be closed exactly once; Close always reaps the child before
// it returns unless wait4 itself fails.
package process
