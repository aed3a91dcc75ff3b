// Package cancel provides a one-shot cancellation signal with subscribers,
// the Go rendition of the pool specification's "cancellation token". It is
// deliberately a thin adapter over context.Context rather than a bespoke
// primitive, so the rest of this module speaks one cancellation vocabulary
// regardless of whether the caller handed in a real context or nothing.
package cancel

import "context"

// Token is a one-shot notification: it fires at most once, and anything
// subscribed before it fires learns the reason.
type Token interface {
	// Canceled reports whether the token has already fired.
	Canceled() bool
	// Err returns the reason the token fired, or nil if it hasn't.
	Err() error
	// OnCancel registers fn to run when the token fires. If it has
	// already fired, fn runs synchronously before OnCancel returns. The
	// returned func removes the subscription; it is always safe to call,
	// even after the token has fired.
	OnCancel(fn func(err error)) (off func())
}

// CancelFunc fires a token with the given reason. A nil reason is replaced
// by context.Canceled. Only the first call has an effect.
type CancelFunc func(reason error)

type token struct {
	mu     chanMutex
	done   bool
	err    error
	subs   map[int]func(error)
	nextID int
}

// chanMutex is a one-slot channel used as a mutex so token never depends on
// the pool's own locking strategy.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	m := make(chanMutex, 1)
	m <- struct{}{}
	return m
}

func (m chanMutex) Lock()   { <-m }
func (m chanMutex) Unlock() { m <- struct{}{} }

// New creates a standalone token and the func that fires it.
func New() (Token, CancelFunc) {
	t := &token{mu: newChanMutex(), subs: make(map[int]func(error))}
	return t, t.cancel
}

func (t *token) cancel(reason error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	if reason == nil {
		reason = context.Canceled
	}
	t.done = true
	t.err = reason
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, fn := range subs {
		fn(reason)
	}
}

func (t *token) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *token) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *token) OnCancel(fn func(error)) func() {
	t.mu.Lock()
	if t.done {
		err := t.err
		t.mu.Unlock()
		fn(err)
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		if t.subs != nil {
			delete(t.subs, id)
		}
		t.mu.Unlock()
	}
}

// never is the Token returned for a nil or non-cancellable context: it
// never fires and OnCancel's subscription is a permanent no-op.
type never struct{}

func (never) Canceled() bool              { return false }
func (never) Err() error                  { return nil }
func (never) OnCancel(func(error)) func() { return func() {} }

// FromContext adapts ctx into a Token without creating an independent
// CancelFunc: the token observes ctx and fires when ctx is done, but
// nothing else can fire it early. Use WithCancel when an independent
// trigger is also needed.
func FromContext(ctx context.Context) Token {
	if ctx == nil || ctx.Done() == nil {
		return never{}
	}
	t, fire := New()
	if err := ctx.Err(); err != nil {
		fire(err)
		return t
	}
	stop := context.AfterFunc(ctx, func() { fire(ctx.Err()) })
	_ = stop // the token outlives this func; nothing needs to stop it early
	return t
}

// WithCancel layers a Token over parent, returning both the Token and an
// independent CancelFunc a caller can use to fire it directly (in addition
// to parent being done).
func WithCancel(parent context.Context) (Token, CancelFunc) {
	t, fire := New()
	if parent != nil {
		if err := parent.Err(); err != nil {
			fire(err)
			return t, fire
		}
		if parent.Done() != nil {
			context.AfterFunc(parent, func() { fire(parent.Err()) })
		}
	}
	return t, fire
}
