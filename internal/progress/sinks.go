package progress

import "sync/atomic"

// Counter is a Sink that keeps a running total. Useful for tests and for
// callers that poll instead of rendering.
type Counter struct {
	total   atomic.Int64
	samples atomic.Int64
}

// Observe implements Sink.
func (c *Counter) Observe(s Sample) {
	c.total.Add(s.BytesDelta)
	c.samples.Add(1)
}

// Total returns the bytes observed so far.
func (c *Counter) Total() int64 { return c.total.Load() }

// Samples returns how many samples were observed.
func (c *Counter) Samples() int64 { return c.samples.Load() }

// ChannelSink forwards samples to a bounded channel. When the channel is
// full the oldest queued sample is taken back and merged into the new one,
// so no bytes are lost and the sender never waits on the receiver.
// An unbuffered ChannelSink blocks the reporter until received.
type ChannelSink chan Sample

// NewChannelSink returns a ChannelSink holding at most capacity samples.
func NewChannelSink(capacity int) ChannelSink {
	if capacity < 1 {
		capacity = 1
	}
	return make(ChannelSink, capacity)
}

// Observe implements Sink.
func (c ChannelSink) Observe(s Sample) {
	if cap(c) == 0 {
		c <- s
		return
	}
	for {
		select {
		case c <- s:
			return
		default:
		}
		select {
		case old := <-c:
			s.BytesDelta += old.BytesDelta
		default:
		}
	}
}

// Multi fans one sample out to several sinks in order.
type Multi []Sink

// Observe implements Sink.
func (m Multi) Observe(s Sample) {
	for _, sink := range m {
		if sink != nil {
			sink.Observe(s)
		}
	}
}
