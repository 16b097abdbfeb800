package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping resyncs.
//
// Every resync gets a strictly increasing sequence number, so reports can be
// ordered without relying on wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use; in practice only the Run
// loop calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}
