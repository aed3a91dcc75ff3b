package pool

import (
	"time"

	"github.com/flowpool/asyncpool/poolerr"
	"golang.org/x/sync/semaphore"
)

// Options is the pool's live configuration. Negative numeric fields mean
// "unlimited"; zero is disallowed for MaxLifetime, MaxIdleTime, and
// MaxOpenCount (it's ambiguous with "unset"), but explicitly legal for
// MaxIdleCount, where it behaves the same as negative: no cap at all. The
// cap only binds when MaxIdleCount is positive.
type Options struct {
	// MaxLifetime destroys an element once its age exceeds this. <=0
	// (other than the disallowed 0) means unlimited.
	MaxLifetime time.Duration
	// MaxIdleTime destroys a pooled element once its idle age exceeds
	// this. <=0 (other than the disallowed 0) means unlimited.
	MaxIdleTime time.Duration
	// MaxOpenCount caps len(active)+len(idle). <=0 (other than the
	// disallowed 0) means unlimited.
	MaxOpenCount int
	// MaxIdleCount caps len(idle), but only when positive; zero or
	// negative both mean unlimited. Unlike the other three fields, 0 is
	// never rejected by validateOptions.
	MaxIdleCount int
	// ParallelCreate, when false, serializes factory.Create calls: grow
	// awaits one create and recomputes before starting another.
	ParallelCreate bool
}

// DefaultOptions mirrors database/sql's own defaults: unlimited lifetime,
// unlimited idle time, unlimited open connections, a small idle cushion,
// and unconstrained concurrent creation.
func DefaultOptions() Options {
	return Options{
		MaxLifetime:    -1,
		MaxIdleTime:    -1,
		MaxOpenCount:   -1,
		MaxIdleCount:   2,
		ParallelCreate: true,
	}
}

// OptionsPatch is a partial update: only non-nil fields are applied.
type OptionsPatch struct {
	MaxLifetime    *time.Duration
	MaxIdleTime    *time.Duration
	MaxOpenCount   *int
	MaxIdleCount   *int
	ParallelCreate *bool
}

func (o Options) apply(patch OptionsPatch) Options {
	next := o
	if patch.MaxLifetime != nil {
		next.MaxLifetime = *patch.MaxLifetime
	}
	if patch.MaxIdleTime != nil {
		next.MaxIdleTime = *patch.MaxIdleTime
	}
	if patch.MaxOpenCount != nil {
		next.MaxOpenCount = *patch.MaxOpenCount
	}
	if patch.MaxIdleCount != nil {
		next.MaxIdleCount = *patch.MaxIdleCount
	}
	if patch.ParallelCreate != nil {
		next.ParallelCreate = *patch.ParallelCreate
	}
	return next
}

func validateOptions(o Options) error {
	if o.MaxLifetime == 0 {
		return poolerr.Wrap(poolerr.ErrOptionInvalid, "MaxLifetime must not be 0")
	}
	if o.MaxIdleTime == 0 {
		return poolerr.Wrap(poolerr.ErrOptionInvalid, "MaxIdleTime must not be 0")
	}
	if o.MaxOpenCount == 0 {
		return poolerr.Wrap(poolerr.ErrOptionInvalid, "MaxOpenCount must not be 0")
	}
	return nil
}

// unboundedWeight stands in for "no cap" in the semaphore that gates
// concurrent Create calls; it's large enough never to bind in practice.
const unboundedWeight = int64(1) << 30

func gateWeight(o Options) int64 {
	if !o.ParallelCreate {
		return 1
	}
	if o.MaxOpenCount > 0 {
		return int64(o.MaxOpenCount)
	}
	return unboundedWeight
}

func newCreateGate(o Options) *semaphore.Weighted {
	return semaphore.NewWeighted(gateWeight(o))
}
