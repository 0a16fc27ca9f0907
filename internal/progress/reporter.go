// Package progress aggregates byte-count notifications from concurrent
// transfer producers and republishes them to a single consumer.
package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

// Reporter fans in byte counts from any number of producers.
//
// Report never blocks: deltas are added to a pending counter and a
// capacity-1 wake channel is signalled without waiting. A single consumer
// goroutine swaps the pending counter to zero and hands the coalesced delta
// to the sink, so memory stays constant no matter how slow the sink is and
// the observed total never decreases.
//
// A nil *Reporter is valid and discards everything.
type Reporter struct {
	sink     Sink
	interval time.Duration

	pending   atomic.Int64
	published atomic.Int64

	wake      chan struct{}
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewReporter starts a reporter publishing to sink. interval > 0 throttles
// publication to at most one sample per interval. A nil sink yields a nil
// reporter.
func NewReporter(sink Sink, interval time.Duration) *Reporter {
	if sink == nil {
		return nil
	}
	r := &Reporter{
		sink:     sink,
		interval: interval,
		wake:     make(chan struct{}, 1),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Report records n transferred bytes. Safe for concurrent use; never blocks.
// Reports after Close are dropped.
func (r *Reporter) Report(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.pending.Add(n)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Total returns the number of bytes published to the sink so far.
func (r *Reporter) Total() int64 {
	if r == nil {
		return 0
	}
	return r.published.Load()
}

// Close publishes anything still pending and stops the consumer goroutine.
// It waits for the final Observe call to return. Safe to call repeatedly.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() { close(r.closing) })
	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)
	for {
		select {
		case <-r.wake:
			r.flush()
			if r.interval > 0 {
				t := time.NewTimer(r.interval)
				select {
				case <-t.C:
				case <-r.closing:
					t.Stop()
					r.flush()
					return
				}
			}
		case <-r.closing:
			r.flush()
			return
		}
	}
}

func (r *Reporter) flush() {
	d := r.pending.Swap(0)
	if d <= 0 {
		return
	}
	r.published.Add(d)
	r.sink.Observe(Sample{BytesDelta: d})
}
