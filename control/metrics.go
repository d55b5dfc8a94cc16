// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for command runs.

package control

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for commands_total.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSignaled = "signaled"
	OutcomeError    = "error"
)

// Metrics holds the collectors of one registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	commands     *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	reapKills    prometheus.Counter
	pollTimeouts prometheus.Counter
	runSeconds   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "procrun",
				Name:      "commands_total",
				Help:      "Supervised commands by outcome.",
			},
			[]string{"outcome"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "procrun",
				Name:      "bytes_total",
				Help:      "Bytes consumed from child output streams.",
			},
			[]string{"stream"},
		),
		reapKills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "procrun",
			Name:      "reap_kills_total",
			Help:      "Children killed because the reap deadline passed.",
		}),
		pollTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "procrun",
			Name:      "poll_timeouts_total",
			Help:      "Reactor waits that expired with nothing ready.",
		}),
		runSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "procrun",
			Name:      "run_seconds",
			Help:      "Wall time from launch to reap.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.commands, m.bytes, m.reapKills, m.pollTimeouts, m.runSeconds)
	return m
}

// Registry exposes the underlying registry for exporters.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordRun records one finished command.
func (m *Metrics) RecordRun(outcome string, stdout, stderr int64, pollTimeouts uint64, killed bool, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(outcome).Inc()
	m.bytes.WithLabelValues("stdout").Add(float64(stdout))
	m.bytes.WithLabelValues("stderr").Add(float64(stderr))
	m.pollTimeouts.Add(float64(pollTimeouts))
	if killed {
		m.reapKills.Inc()
	}
	m.runSeconds.Observe(d.Seconds())
}

// Commands returns the collector for assertions and exporters.
func (m *Metrics) Commands() *prometheus.CounterVec { return m.commands }

// Bytes returns the per-stream byte counter.
func (m *Metrics) Bytes() *prometheus.CounterVec { return m.bytes }

// ReapKills returns the SIGKILL escalation counter.
func (m *Metrics) ReapKills() prometheus.Counter { return m.reapKills }

// PollTimeouts returns the expired-wait counter.
func (m *Metrics) PollTimeouts() prometheus.Counter { return m.pollTimeouts }

// WriteTextfile writes the registry in text exposition format for the node
// exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
