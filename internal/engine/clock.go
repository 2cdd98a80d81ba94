package engine

import "sync/atomic"

// Clock hands out submission sequence numbers.
//
// Proxies are stamped at submission, so seq order is submission order across
// all lanes, whatever order they later execute in.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
