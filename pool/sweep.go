package pool

import "time"

// isExpiredLocked reports whether el has outlived MaxLifetime or
// MaxIdleTime, bumping the matching counter as a side effect. Callers must
// hold p.mu.
func (p *Pool[T]) isExpiredLocked(el *element[T]) bool {
	now := time.Now()
	if p.options.MaxLifetime > 0 && now.Sub(el.createdAt) > p.options.MaxLifetime {
		p.maxLifetimeClosed++
		return true
	}
	if p.options.MaxIdleTime > 0 && !el.idledAt.IsZero() && now.Sub(el.idledAt) > p.options.MaxIdleTime {
		p.maxIdleTimeClosed++
		return true
	}
	return false
}

// ttlLocked returns the smaller of el's remaining lifetime/idle budgets, or
// ok=false if both caps are off. Callers must hold p.mu.
func (p *Pool[T]) ttlLocked(el *element[T]) (ttl time.Duration, ok bool) {
	if p.options.MaxLifetime > 0 {
		remain := p.options.MaxLifetime - time.Since(el.createdAt)
		if remain < 0 {
			remain = 0
		}
		ttl, ok = remain, true
	}
	if p.options.MaxIdleTime > 0 {
		remain := p.options.MaxIdleTime - time.Since(el.idledAt)
		if remain < 0 {
			remain = 0
		}
		if !ok || remain < ttl {
			ttl = remain
		}
		ok = true
	}
	return ttl, ok
}

// pushSweep schedules the next sweep at now+ttl, unless an earlier sweep is
// already scheduled with a strictly sooner deadline.
func (p *Pool[T]) pushSweep(ttl time.Duration) {
	p.mu.Lock()
	deadline := time.Now().Add(ttl)
	if p.sweep != nil && p.sweep.deadline.Before(deadline) {
		p.mu.Unlock()
		return
	}
	if p.sweep != nil {
		p.sweep.timer.Stop()
	}
	st := &sweepState{deadline: deadline}
	st.timer = time.AfterFunc(ttl, p.runSweep)
	p.sweep = st
	p.mu.Unlock()
}

// stopSweepLocked cancels any scheduled sweep. Callers must hold p.mu.
func (p *Pool[T]) stopSweepLocked() {
	if p.sweep != nil {
		p.sweep.timer.Stop()
		p.sweep = nil
	}
}

// runSweep is the sweep timer's callback: it destroys every expired idle
// element and reschedules for the nearest surviving TTL.
func (p *Pool[T]) runSweep() {
	p.mu.Lock()
	// Clear the stored handle before scanning so a reschedule triggered
	// from within this pass (via SetOptions, say) wins over whatever this
	// pass would otherwise push.
	p.sweep = nil

	var toDestroy []*element[T]
	kept := make([]*element[T], 0, len(p.idle))
	var minTTL time.Duration
	haveTTL := false

	for i := len(p.idle) - 1; i >= 0; i-- {
		el := p.idle[i]
		if p.isExpiredLocked(el) {
			toDestroy = append(toDestroy, el)
			continue
		}
		if ttl, ok := p.ttlLocked(el); ok && (!haveTTL || ttl < minTTL) {
			minTTL, haveTTL = ttl, true
		}
		kept = append([]*element[T]{el}, kept...)
	}
	p.idle = kept

	if haveTTL && minTTL > maxSweepInterval {
		minTTL = maxSweepInterval
	}
	hasIdle := len(p.idle) > 0
	p.mu.Unlock()

	for _, el := range toDestroy {
		go p.destroy(el.item)
	}
	if hasIdle && haveTTL {
		p.pushSweep(minTTL)
	}
}
