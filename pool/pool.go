package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowpool/asyncpool/cancel"
	"github.com/flowpool/asyncpool/future"
	"github.com/flowpool/asyncpool/poolerr"
	"golang.org/x/sync/semaphore"
)

// maxConsecutiveCreateFailures is the "10-strike" threshold: this many
// consecutive factory.Create failures in a row shut the pool down.
const maxConsecutiveCreateFailures = 10

// maxSweepInterval caps how far out runSweep reschedules the next sweep.
// A sweep pushed from offerAvailable or SetOptions is not capped.
const maxSweepInterval = 600 * time.Second

// Pool multiplexes a bounded set of T resources between concurrent
// requesters. T must be a valid Go map key: the pool tracks lent-out items
// with a map[T]*element[T] back-reference, the portable stand-in for the
// hidden pointer the teacher lineage attaches to a connection struct.
type Pool[T comparable] struct {
	factory Factory[T]

	mu           sync.Mutex
	options      Options
	idle         []*element[T] // LIFO stack, oldest at index 0
	active       map[T]*element[T]
	waitQueue    []*waiter[T] // FIFO queue
	creating     int
	destroying   int
	createFails  int
	growing      bool
	closing      bool
	closed       bool
	waitClose    *future.Promise[struct{}]
	sweep        *sweepState
	createGate   *semaphore.Weighted
	waitDuration time.Duration

	maxIdleClosed     uint64
	maxIdleTimeClosed uint64
	maxLifetimeClosed uint64

	errMu       sync.Mutex
	errNextID   int
	errHandlers map[int]func(Action, error)
}

type sweepState struct {
	deadline time.Time
	timer    *time.Timer
}

// New creates a Pool backed by factory, validating opts the same way
// SetOptions does.
func New[T comparable](factory Factory[T], opts Options) (*Pool[T], error) {
	if factory == nil {
		return nil, poolerr.Wrap(poolerr.ErrOptionInvalid, "factory is required")
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	return &Pool[T]{
		factory:     factory,
		options:     opts,
		active:      make(map[T]*element[T]),
		createGate:  newCreateGate(opts),
		errHandlers: make(map[int]func(Action, error)),
	}, nil
}

// Get requests an item. A nil ctx is treated as context.Background(). The
// returned future resolves with an item, or rejects with ErrClosed,
// ErrClosing, or a canceled error (see poolerr.IsCanceled).
func (p *Pool[T]) Get(ctx context.Context) future.Awaitable[T] {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		out := future.New[T]()
		out.Reject(poolerr.ErrClosed)
		return out
	}
	if p.closing {
		p.mu.Unlock()
		out := future.New[T]()
		out.Reject(poolerr.ErrClosing)
		return out
	}
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		out := future.New[T]()
		out.Reject(poolerr.Cancel(err))
		return out
	}

	if n := len(p.idle); n > 0 {
		el := p.idle[n-1]
		p.idle = p.idle[:n-1]
		el.idledAt = time.Time{}
		p.active[el.item] = el
		p.mu.Unlock()

		out := future.New[T]()
		out.Resolve(el.item)
		return out
	}

	tok := cancel.FromContext(ctx)
	promise := future.NewWithToken[T](tok)
	w := &waiter[T]{promise: promise, enqueuedAt: time.Now()}
	p.waitQueue = append(p.waitQueue, w)
	p.mu.Unlock()

	promise.Subscribe(func(_ T, err error) {
		p.mu.Lock()
		p.waitDuration += time.Since(w.enqueuedAt)
		p.mu.Unlock()
		if err != nil && poolerr.IsCanceled(err) {
			p.removeWaiter(w)
		}
	})

	go p.grow()
	return promise
}

func (p *Pool[T]) removeWaiter(w *waiter[T]) {
	p.mu.Lock()
	for i, x := range p.waitQueue {
		if x == w {
			p.waitQueue = append(p.waitQueue[:i], p.waitQueue[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

// Release returns item to the pool. An item the pool doesn't recognize as
// currently active (a foreign item, or a double release) is destroyed
// rather than pooled. This is a caller-side bug, not a factory failure, but
// it's still reported through OnError under ActionDestroy so callers watching
// for destroy errors also catch it; the diagnostic names the element's uuid
// when the item is still sitting in idle (the double-release case) or
// "unknown" when the pool never held it at all.
func (p *Pool[T]) Release(item T) {
	p.mu.Lock()
	el, ok := p.active[item]
	if !ok {
		id := "unknown"
		for _, idleEl := range p.idle {
			if idleEl.item == item {
				id = idleEl.id.String()
				break
			}
		}
		p.mu.Unlock()
		p.emitError(ActionDestroy, fmt.Errorf("pool: release of an item not held by the pool (element %s)", id))
		go p.destroy(item)
		return
	}
	delete(p.active, item)
	p.mu.Unlock()

	if resetter, ok := any(p.factory).(Resetter[T]); ok {
		if err := resetter.Reset(item); err != nil {
			p.emitError(ActionReset, err)
			go p.destroy(item)
			return
		}
	}
	p.offerAvailable(el)
}

// offerAvailable decides the fate of a just-created or just-released
// element: destroy it, hand it straight to the oldest waiter, pool it, or
// destroy it as excess.
func (p *Pool[T]) offerAvailable(el *element[T]) {
	p.mu.Lock()

	switch {
	case p.closing:
		p.mu.Unlock()
		go p.destroy(el.item)
		return
	case p.isExpiredLocked(el):
		p.mu.Unlock()
		go p.destroy(el.item)
		return
	case p.options.MaxOpenCount > 0 && len(p.active)+len(p.idle) >= p.options.MaxOpenCount:
		p.maxIdleClosed++
		p.mu.Unlock()
		go p.destroy(el.item)
		return
	}

	if len(p.waitQueue) > 0 {
		w := p.waitQueue[0]
		p.waitQueue = p.waitQueue[1:]
		p.active[el.item] = el
		p.mu.Unlock()
		w.promise.Resolve(el.item)
		return
	}

	if p.options.MaxIdleCount <= 0 || len(p.idle) < p.options.MaxIdleCount {
		el.idledAt = time.Now()
		p.idle = append(p.idle, el)
		ttl, ok := p.ttlLocked(el)
		p.mu.Unlock()
		if ok {
			p.pushSweep(ttl)
		}
		return
	}

	p.maxIdleClosed++
	p.mu.Unlock()
	go p.destroy(el.item)
}

// grow is a re-entrancy-guarded background routine that creates enough new
// resources to satisfy queued waiters.
func (p *Pool[T]) grow() {
	p.mu.Lock()
	if p.growing || p.closing {
		p.mu.Unlock()
		return
	}
	p.growing = true

	needed := len(p.waitQueue)
	if p.options.MaxOpenCount > 0 {
		if room := p.options.MaxOpenCount - len(p.active); room < needed {
			needed = room
		}
	}
	needed -= p.creating
	if needed < 0 {
		needed = 0
	}
	parallel := p.options.ParallelCreate
	gate := p.createGate
	p.mu.Unlock()

	ctx := context.Background()
	for i := 0; i < needed; i++ {
		if err := gate.Acquire(ctx, 1); err != nil {
			break
		}
		// Count the create as in flight before it starts, so a grow pass
		// that runs before the create goroutine does will not start another.
		p.mu.Lock()
		p.creating++
		p.mu.Unlock()
		if parallel {
			go func() {
				defer gate.Release(1)
				p.create()
			}()
			continue
		}
		// parallelCreate=false: await this one create and recompute on
		// the next grow pass, per the spec's intentional short-circuit.
		p.create()
		gate.Release(1)
		break
	}

	p.mu.Lock()
	p.growing = false
	again := !p.closing && len(p.waitQueue) > 0 && p.creating == 0
	p.mu.Unlock()
	if again {
		time.AfterFunc(0, p.grow)
	}
	p.flush()
}

// create runs one factory.Create. grow has already counted it in p.creating.
func (p *Pool[T]) create() {
	item, err := p.factory.Create(context.Background())
	if err != nil {
		p.emitError(ActionCreate, err)
		p.mu.Lock()
		p.creating--
		p.createFails++
		fails := p.createFails
		retry := !p.closing && len(p.waitQueue) > 0
		p.mu.Unlock()
		p.flush()
		if fails >= maxConsecutiveCreateFailures {
			p.Close(nil)
			return
		}
		if retry {
			go p.grow()
		}
		return
	}

	p.mu.Lock()
	p.createFails = 0
	p.creating--
	closing := p.closing
	p.mu.Unlock()

	if closing {
		go p.destroy(item)
		return
	}

	p.offerAvailable(newElement(item))
}

func (p *Pool[T]) destroy(item T) {
	p.mu.Lock()
	p.destroying++
	p.mu.Unlock()

	if err := p.factory.Destroy(context.Background(), item); err != nil {
		p.emitError(ActionDestroy, err)
	}

	p.mu.Lock()
	p.destroying--
	done := p.destroying == 0
	p.mu.Unlock()
	if done {
		p.flush()
	}
}

// Close begins graceful shutdown: subsequent Get calls reject with
// ErrClosed (or ErrClosing while still draining). Queued waiters reject
// with ErrClosing, idle resources are destroyed, and if fn is given it is
// invoked once per currently in-use item — fn is responsible for eventually
// causing Release to run; Close never resolves if it doesn't. Calling
// Close again before it resolves returns the same future; calling it after
// resolution returns an already-resolved one.
func (p *Pool[T]) Close(fn func(T)) future.Awaitable[struct{}] {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		out := future.New[struct{}]()
		out.Resolve(struct{}{})
		return out
	}
	if p.closing {
		wc := p.waitClose
		p.mu.Unlock()
		return wc
	}

	p.closing = true
	p.waitClose = future.New[struct{}]()
	p.stopSweepLocked()

	waiters := p.waitQueue
	p.waitQueue = nil
	idle := p.idle
	p.idle = nil
	activeItems := make([]T, 0, len(p.active))
	for item := range p.active {
		activeItems = append(activeItems, item)
	}
	wc := p.waitClose
	p.mu.Unlock()

	for _, w := range waiters {
		w.promise.Reject(poolerr.ErrClosing)
	}
	for _, el := range idle {
		go p.destroy(el.item)
	}
	if fn != nil {
		for _, item := range activeItems {
			fn(item)
		}
	}
	p.flush()
	return wc
}

// flush transitions closing -> closed once every in-flight create/destroy
// has settled and no item remains active.
func (p *Pool[T]) flush() {
	p.mu.Lock()
	if !p.closing || p.closed || p.destroying != 0 || p.creating != 0 || len(p.active) != 0 {
		p.mu.Unlock()
		return
	}
	p.closed = true
	wc := p.waitClose
	p.mu.Unlock()
	if wc != nil {
		wc.Resolve(struct{}{})
	}
}

// Stats returns a point-in-time snapshot of the pool.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		MaxOpenCount:      p.options.MaxOpenCount,
		MaxLifetime:       p.options.MaxLifetime,
		MaxIdleTime:       p.options.MaxIdleTime,
		MaxIdleCount:      p.options.MaxIdleCount,
		Count:             len(p.active) + len(p.idle),
		InUseCount:        len(p.active),
		IdleCount:         len(p.idle),
		WaitCount:         len(p.waitQueue),
		WaitDuration:      p.waitDuration,
		MaxIdleClosed:     p.maxIdleClosed,
		MaxIdleTimeClosed: p.maxIdleTimeClosed,
		MaxLifetimeClosed: p.maxLifetimeClosed,
	}
}

// SetOptions applies a partial configuration update. Disallowed values
// (MaxLifetime, MaxIdleTime, or MaxOpenCount set to exactly 0) return
// ErrOptionInvalid without mutating any state.
func (p *Pool[T]) SetOptions(patch OptionsPatch) error {
	p.mu.Lock()
	next := p.options.apply(patch)
	if err := validateOptions(next); err != nil {
		p.mu.Unlock()
		return err
	}
	p.options = next
	p.createGate = newCreateGate(next)

	var toDestroy []*element[T]
	if next.MaxOpenCount > 0 {
		for len(p.active)+len(p.idle) > next.MaxOpenCount && len(p.idle) > 0 {
			el := p.idle[0]
			p.idle = p.idle[1:]
			p.maxIdleClosed++
			toDestroy = append(toDestroy, el)
		}
	}
	if next.MaxIdleCount > 0 {
		for len(p.idle) > next.MaxIdleCount && len(p.idle) > 0 {
			el := p.idle[0]
			p.idle = p.idle[1:]
			p.maxIdleClosed++
			toDestroy = append(toDestroy, el)
		}
	}

	lifetimeOrIdleTimeChanged := patch.MaxLifetime != nil || patch.MaxIdleTime != nil
	clearSweep := lifetimeOrIdleTimeChanged && next.MaxLifetime <= 0 && next.MaxIdleTime <= 0
	scheduleNow := lifetimeOrIdleTimeChanged && !clearSweep
	if clearSweep {
		p.stopSweepLocked()
	}

	triggerGrow := patch.MaxOpenCount != nil && len(p.waitQueue) > 0
	p.mu.Unlock()

	for _, el := range toDestroy {
		go p.destroy(el.item)
	}
	if scheduleNow {
		p.pushSweep(0)
	}
	if triggerGrow {
		go p.grow()
	}
	return nil
}

// OnError subscribes to factory errors surfaced from Create, Destroy, and
// Reset. The returned func removes the subscription.
func (p *Pool[T]) OnError(handler func(Action, error)) (off func()) {
	p.errMu.Lock()
	id := p.errNextID
	p.errNextID++
	p.errHandlers[id] = handler
	p.errMu.Unlock()

	return func() {
		p.errMu.Lock()
		delete(p.errHandlers, id)
		p.errMu.Unlock()
	}
}

func (p *Pool[T]) emitError(action Action, err error) {
	p.errMu.Lock()
	handlers := make([]func(Action, error), 0, len(p.errHandlers))
	for _, h := range p.errHandlers {
		handlers = append(handlers, h)
	}
	p.errMu.Unlock()

	for _, h := range handlers {
		h(action, err)
	}
}
