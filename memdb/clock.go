package memdb

import "sync/atomic"

// revClock is a monotonic logical clock for document revisions.
//
// All writes are stamped with a strictly increasing rev from this
// clock, never with wall-clock timestamps, so replaying the same
// sequence of writes produces identical revisions.
//
// Thread-safety: safe for concurrent use (atomic operations), though
// the DB's single-writer lock means one goroutine typically calls
// Next().
type revClock struct {
	rev atomic.Int64
}

// Next returns the next revision and increments the clock.
func (c *revClock) Next() int64 {
	return c.rev.Add(1)
}

// Current returns the current revision without incrementing.
func (c *revClock) Current() int64 {
	return c.rev.Load()
}
