// Package testutil provides deterministic clocks and identifier
// generators so kernel runs produce byte-identical ledgers across test
// executions.
package testutil

import (
	"sync"
	"time"
)

// SteppingClock is a thread-safe clock that advances by a fixed step on
// every read.
//
// Stepping on read, rather than standing still, keeps at-ordering strict:
// every span appended during a test gets a distinct, increasing timestamp,
// so cursor advancement and oldest-first scans behave as they do under a
// wall clock. Same scenario, same clock, identical ledger.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SteppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewSteppingClock creates a clock starting at start, advancing by step on
// each Now call. A zero step defaults to one millisecond.
func NewSteppingClock(start time.Time, step time.Duration) *SteppingClock {
	if step == 0 {
		step = time.Millisecond
	}
	return &SteppingClock{now: start.UTC(), step: step}
}

// Now returns the current reading and advances the clock by one step.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock forward without producing a reading. Used to
// simulate slow executions.
func (c *SteppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
