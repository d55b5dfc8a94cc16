// Package control
// Author: momentics <momentics@gmail.com>
//
// Run telemetry for supervised commands: Prometheus counters and histograms
// on a private registry, a textfile-collector writer, and named debug probes
// that snapshot live runner state.
package control
