package protocol

import "sync/atomic"

// IDSource hands out msg_id values for messages a node originates.
type IDSource interface {
	Next() uint64
}

// Counter is a monotonic IDSource. The zero value starts at 0.
type Counter struct {
	next atomic.Uint64
}

// NewCounter returns a Counter whose first id is start.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.next.Store(start)
	return c
}

// Next returns the current id and advances the counter.
func (c *Counter) Next() uint64 {
	return c.next.Add(1) - 1
}
