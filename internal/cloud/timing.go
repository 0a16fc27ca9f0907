// Package cloud holds code shared by the direct-to-storage backends.
// timing.go - per-call timing for storage requests.
//
// Enable timing output by setting SFS_TIMING=1. Timings are logged at info
// level through the backend's logger:
//
//	INF storage call op="upload part" took=850ms size="32.0 MB" speed="37.6 MB/s"
package cloud

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fossMeDaddy/sfs-cli/internal/logging"
)

// EnvTiming enables timing logs when set to "1".
const EnvTiming = "SFS_TIMING"

// TimingEnabled returns true if SFS_TIMING=1.
func TimingEnabled() bool {
	return os.Getenv(EnvTiming) == "1"
}

// Timer tracks elapsed time for one storage call.
// Stop is idempotent; only the first call logs.
type Timer struct {
	op      string
	start   time.Time
	logger  *logging.Logger
	stopped int32 // atomic flag
}

// StartTimer creates a timer for op. A nil logger discards output.
func StartTimer(logger *logging.Logger, op string) *Timer {
	return &Timer{
		op:     op,
		start:  time.Now(),
		logger: logging.OrNop(logger),
	}
}

// Elapsed returns the current elapsed time without stopping the timer.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Stop logs the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	return t.StopWithThroughput(-1)
}

// StopWithThroughput logs elapsed time with size and speed when bytes >= 0.
func (t *Timer) StopWithThroughput(bytes int64) time.Duration {
	elapsed := time.Since(t.start)
	if !atomic.CompareAndSwapInt32(&t.stopped, 0, 1) || !TimingEnabled() {
		return elapsed
	}
	ev := t.logger.Info().Str("op", t.op).Dur("took", elapsed)
	if bytes >= 0 {
		ev = ev.Str("size", FormatBytes(bytes))
		if elapsed > 0 {
			ev = ev.Str("speed", FormatSpeed(float64(bytes)/elapsed.Seconds()))
		}
	}
	ev.Msg("storage call")
	return elapsed
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed returns a human-readable speed in bytes/second.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec < 1024 {
		return fmt.Sprintf("%.1f B/s", bytesPerSec)
	}
	if bytesPerSec < 1024*1024 {
		return fmt.Sprintf("%.1f KB/s", bytesPerSec/1024)
	}
	return fmt.Sprintf("%.1f MB/s", bytesPerSec/(1024*1024))
}
