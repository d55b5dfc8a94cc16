// File: internal/concurrency/backoff.go
// Author: momentics <momentics@gmail.com>
//
// Doubling backoff clamped to a total budget.

package concurrency

import "time"

// Backoff sleeps in doubling steps without overshooting its budget.
// It is not safe for concurrent use.
type Backoff struct {
	next   time.Duration
	max    time.Duration
	budget time.Duration
	start  time.Time

	sleep func(time.Duration)
}

// NewBackoff starts a schedule at initial, doubling after each step, for at
// most budget of wall time. A zero max leaves steps uncapped.
func NewBackoff(initial, max, budget time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Millisecond
	}
	return &Backoff{
		next:   initial,
		max:    max,
		budget: budget,
		start:  time.Now(),
		sleep:  time.Sleep,
	}
}

// Elapsed is the wall time since the schedule started.
func (b *Backoff) Elapsed() time.Duration { return time.Since(b.start) }

// Remaining is the unspent budget, never negative.
func (b *Backoff) Remaining() time.Duration {
	if r := b.budget - b.Elapsed(); r > 0 {
		return r
	}
	return 0
}

// Expired reports whether the budget is spent.
func (b *Backoff) Expired() bool { return b.Remaining() == 0 }

// Next is the step the following Sleep would take before clamping.
func (b *Backoff) Next() time.Duration { return b.next }

// Sleep waits for the current step, clamped to the remaining budget, then
// doubles the step. It returns the time slept.
func (b *Backoff) Sleep() time.Duration {
	d := b.next
	if r := b.Remaining(); d > r {
		d = r
	}
	if d > 0 {
		b.sleep(d)
	}
	b.next *= 2
	if b.max > 0 && b.next > b.max {
		b.next = b.max
	}
	return d
}
