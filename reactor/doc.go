// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides Poller, a single-threaded poll(2) readiness loop
// dispatching api.Action values. Every watched descriptor is polled on every
// cycle (level triggered); data events are dispatched before error events.
package reactor
