package future

import (
	"time"

	"github.com/flowpool/asyncpool/cancel"
	"github.com/flowpool/asyncpool/poolerr"
)

// Bound is a closed sum type for what Limit/Wait race an operation
// against: a millisecond duration, an absolute deadline, or a cancellation
// token. Construct one with Millis, Deadline, or ByToken.
type Bound struct {
	hasToken bool
	token    cancel.Token
	millis   time.Duration
}

// Millis bounds by a plain duration.
func Millis(d time.Duration) Bound {
	return Bound{millis: d}
}

// Deadline bounds by an absolute time, converted to a duration against
// time.Now() at the point Deadline is called.
func Deadline(t time.Time) Bound {
	return Bound{millis: time.Until(t)}
}

// ByToken bounds by a cancellation token rather than a clock.
func ByToken(tok cancel.Token) Bound {
	return Bound{hasToken: true, token: tok}
}

// Limit returns a future that resolves to p's value, or fails with a
// timeout/cancellation error, whichever happens first. p itself is never
// cancelled — it runs to completion — but a late resolution after the
// bound has already fired is ignored.
func Limit[T any](p Awaitable[T], bound Bound) Awaitable[T] {
	out := New[T]()

	if bound.hasToken {
		tok := bound.token
		if tok == nil {
			p.Subscribe(func(val T, err error) { forward(out, val, err) })
			return out
		}
		if tok.Canceled() {
			out.Reject(poolerr.Cancel(tok.Err()))
			return out
		}
		off := tok.OnCancel(func(err error) {
			out.Reject(poolerr.Cancel(err))
		})
		p.Subscribe(func(val T, err error) {
			off()
			forward(out, val, err)
		})
		return out
	}

	if bound.millis <= 0 {
		out.Reject(poolerr.ErrTimeout)
		return out
	}
	timer := time.AfterFunc(bound.millis, func() {
		out.Reject(poolerr.ErrTimeout)
	})
	p.Subscribe(func(val T, err error) {
		timer.Stop()
		forward(out, val, err)
	})
	return out
}

func forward[T any](out *Promise[T], val T, err error) {
	if err != nil {
		out.Reject(err)
		return
	}
	out.Resolve(val)
}

// Wait returns a future that resolves after bound elapses or its token
// cancels. A non-positive duration, a past deadline, a nil token, or an
// already-cancelled token all resolve immediately.
func Wait(bound Bound) Awaitable[struct{}] {
	out := New[struct{}]()

	if bound.hasToken {
		tok := bound.token
		if tok == nil || tok.Canceled() {
			out.Resolve(struct{}{})
			return out
		}
		tok.OnCancel(func(error) { out.Resolve(struct{}{}) })
		return out
	}

	if bound.millis <= 0 {
		out.Resolve(struct{}{})
		return out
	}
	time.AfterFunc(bound.millis, func() { out.Resolve(struct{}{}) })
	return out
}
