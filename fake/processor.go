// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

// Processor is a configurable api.Processor.
type Processor struct {
	Timeout int
	Running bool

	// Hook decides TimeoutHook results; nil keeps waiting.
	Hook func(calls int) bool

	HookCalls int
}

// NewProcessor returns a running processor that waits timeoutMs per cycle.
func NewProcessor(timeoutMs int) *Processor {
	return &Processor{Timeout: timeoutMs, Running: true}
}

func (p *Processor) PollTimeout() int { return p.Timeout }

func (p *Processor) TimeoutHook() bool {
	p.HookCalls++
	if p.Hook == nil {
		return true
	}
	return p.Hook(p.HookCalls)
}

func (p *Processor) KeepRunning() bool { return p.Running }

// StopAfter returns a hook that gives up on the n-th timeout.
func StopAfter(n int) func(int) bool {
	return func(calls int) bool { return calls < n }
}
