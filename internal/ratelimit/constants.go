package ratelimit

import "time"

// Control-plane rate
//
// The sfs API throttles bookkeeping calls per token. We stay under it
// client-side so large multipart batches do not trip 429s on complete.
const (
	// ControlPlaneRatePerSec is the sustained request rate for non-body calls.
	ControlPlaneRatePerSec = 8.0

	// ControlPlaneBurstCapacity allows a burst of metadata lookups at startup
	// (e.g. downloading many ids at once).
	ControlPlaneBurstCapacity = 32
)

const (
	// LongWaitThreshold is the wait above which a warning is logged.
	LongWaitThreshold = 2 * time.Second

	// NotifyMinInterval is the minimum time between consecutive warnings.
	NotifyMinInterval = 10 * time.Second

	// DefaultCooldown is applied after a 429 without a usable Retry-After.
	DefaultCooldown = 5 * time.Second
)
