// Package buffers provides reusable byte buffers and seekable spools for
// transfer bodies.
package buffers

import (
	"sync"
	"sync/atomic"

	"github.com/fossMeDaddy/sfs-cli/internal/constants"
)

// Pool monitoring counters
var (
	copyAllocations int64 // copy buffers created by the pool
	copyGets        int64 // copy buffers handed out
)

// copyPool provides CopyBufferSize buffers for network stream copies.
var copyPool = &sync.Pool{
	New: func() interface{} {
		atomic.AddInt64(&copyAllocations, 1)
		buf := make([]byte, constants.CopyBufferSize)
		return &buf
	},
}

// GetCopyBuffer retrieves a copy buffer from the pool.
// The buffer must be returned with PutCopyBuffer when done.
//
// Usage:
//
//	buf := buffers.GetCopyBuffer()
//	defer buffers.PutCopyBuffer(buf)
//	n, err := src.Read(*buf)
func GetCopyBuffer() *[]byte {
	atomic.AddInt64(&copyGets, 1)
	return copyPool.Get().(*[]byte)
}

// PutCopyBuffer returns a buffer to the pool. Only buffers of the pooled
// size are kept, and they are cleared first so plaintext does not linger.
func PutCopyBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == constants.CopyBufferSize {
		clear(*buf)
		copyPool.Put(buf)
	}
}

// Stats is a snapshot of pool usage.
type Stats struct {
	CopyBufferSize  int
	CopyAllocations int64
	CopyGets        int64
}

// GetStats returns current buffer pool statistics.
func GetStats() Stats {
	return Stats{
		CopyBufferSize:  constants.CopyBufferSize,
		CopyAllocations: atomic.LoadInt64(&copyAllocations),
		CopyGets:        atomic.LoadInt64(&copyGets),
	}
}

// ReuseRate returns the fraction of gets served without a new allocation.
func (s Stats) ReuseRate() float64 {
	if s.CopyGets == 0 {
		return 0
	}
	reused := s.CopyGets - s.CopyAllocations
	if reused < 0 {
		reused = 0
	}
	return float64(reused) / float64(s.CopyGets)
}
