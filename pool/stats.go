package pool

import "time"

// Stats is a point-in-time snapshot of a Pool's state and counters.
type Stats struct {
	MaxOpenCount int
	MaxLifetime  time.Duration
	MaxIdleTime  time.Duration
	MaxIdleCount int

	Count      int // InUseCount + IdleCount
	InUseCount int
	IdleCount  int
	WaitCount  int

	WaitDuration time.Duration

	MaxIdleClosed     uint64
	MaxIdleTimeClosed uint64
	MaxLifetimeClosed uint64
}
