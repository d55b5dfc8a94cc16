// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package readers holds api.ReaderPair implementations: in-memory capture,
// file sink, descriptor forwarding, echo to the process's own standard
// streams, a discarding reader and an idle-timeout wrapper.
//
// Every reader consumes at most one chunk per readiness event and reports
// EOF by returning false, which drops the stream from the reactor.
package readers
