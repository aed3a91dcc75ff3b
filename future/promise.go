// Package future provides a callback-exposed promise — a future whose
// completion handles (Resolve/Reject) are directly callable by a producer
// other than the code awaiting it — plus a bounded waiter that races a
// future against a timeout, a deadline, or a cancellation token.
package future

import (
	"sync"

	"github.com/flowpool/asyncpool/cancel"
	"github.com/flowpool/asyncpool/poolerr"
)

// Awaitable is the consumer side of a future.
type Awaitable[T any] interface {
	// Await blocks until the future settles and returns its value or error.
	Await() (T, error)
	// Subscribe runs fn once the future settles. If it already has, fn
	// runs synchronously before Subscribe returns.
	Subscribe(fn func(T, error))
}

// Promise is a future whose producer side (Resolve/Reject) is decoupled
// from its consumer side (Await/Subscribe). Resolving or rejecting a
// Promise more than once is a no-op: the first call wins.
type Promise[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	val      T
	err      error
	subs     []func(T, error)
	unsub    func()
}

// New creates an unsettled Promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// NewWithToken creates a Promise that automatically rejects when tok fires.
// If tok has already fired, the Promise is rejected before NewWithToken
// returns. The rejection reason is always tok's own stored error, tagged so
// poolerr.IsCanceled reports true. Go's context.Context guarantees Err() is
// never nil once Done() has fired, so every token this package ever builds
// from a context (FromContext, WithCancel) always carries a concrete
// reason; there is no "cancelled with unspecified reason" case for a
// caller-supplied fallback to fill in.
func NewWithToken[T any](tok cancel.Token) *Promise[T] {
	p := New[T]()
	if tok == nil {
		return p
	}
	if tok.Canceled() {
		p.Reject(poolerr.Cancel(tok.Err()))
		return p
	}

	unsub := tok.OnCancel(func(err error) {
		p.Reject(poolerr.Cancel(err))
	})

	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		unsub()
	} else {
		p.unsub = unsub
		p.mu.Unlock()
	}
	return p
}

// Resolve settles the Promise successfully. A no-op if already settled.
func (p *Promise[T]) Resolve(val T) {
	p.settle(val, nil)
}

// Reject settles the Promise with an error. A no-op if already settled.
func (p *Promise[T]) Reject(err error) {
	var zero T
	p.settle(zero, err)
}

func (p *Promise[T]) settle(val T, err error) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return
	}
	p.resolved = true
	p.val, p.err = val, err
	subs := p.subs
	p.subs = nil
	unsub := p.unsub
	p.unsub = nil
	close(p.done)
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, fn := range subs {
		fn(val, err)
	}
}

// Await blocks until the Promise settles.
func (p *Promise[T]) Await() (T, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.val, p.err
}

// Subscribe runs fn once the Promise settles, synchronously if it already
// has.
func (p *Promise[T]) Subscribe(fn func(T, error)) {
	p.mu.Lock()
	if p.resolved {
		val, err := p.val, p.err
		p.mu.Unlock()
		fn(val, err)
		return
	}
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}
