// Package backoff slows an operation down after repeated failures within a
// sliding window. The spool's reaper uses it so that a sweep that keeps
// failing (disk errors, permission problems) backs off instead of spinning.
package backoff

import (
	"sync"
	"time"
)

type BackOff struct {
	// The window over which failures are counted. Failures older than
	// this stop contributing to the delay.
	Period time.Duration

	// The additional delay added for each failure inside the window.
	X time.Duration

	// The delay ceiling.
	Max time.Duration

	// Failure timestamps inside the window, oldest first. Pruned on every
	// call rather than on a timer.
	lock     sync.Mutex
	failures []time.Time
}

// Failure records one failed attempt.
func (b *BackOff) Failure() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.prune()
	b.failures = append(b.failures, time.Now())
}

// Reset forgets all recorded failures, typically after a success.
func (b *BackOff) Reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.failures = b.failures[:0]
}

// Wait returns how long the caller should delay before the next attempt.
// Zero when there are no failures inside the window.
func (b *BackOff) Wait() time.Duration {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.prune()
	wait := time.Duration(len(b.failures)) * b.X
	if wait > b.Max {
		return b.Max
	}
	return wait
}

// Callers must hold the lock.
func (b *BackOff) prune() {
	cutoff := time.Now().Add(-b.Period)
	keep := 0
	for keep < len(b.failures) && !b.failures[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		b.failures = append(b.failures[:0], b.failures[keep:]...)
	}
}
