package engine

import "sync/atomic"

// Clock is a monotonic logical clock.
//
// Every mutation request is stamped with a strictly increasing value from
// this clock at the moment it is issued. Response ordering is decided by
// these values, never by wall time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// In practice only the loop goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to resume after the highest issuedAt recorded in the journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
