// Package poolerr defines the transport-level error taxonomy shared by the
// pool, future, and cancel packages. Every sentinel wraps through
// golang.org/x/xerrors so callers get errors.Is/As and, with "%+v", a frame
// dump the way the teacher lineage's misc.wrapError gave free of charge.
package poolerr

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// ErrCanceled means a request was cancelled by its context before an
	// item became available.
	ErrCanceled = xerrors.New("pool: request canceled")
	// ErrClosing means the pool is in the process of shutting down.
	ErrClosing = xerrors.New("pool: closing")
	// ErrClosed means the pool has finished shutting down.
	ErrClosed = xerrors.New("pool: closed")
	// ErrOptionInvalid means SetOptions was given a disallowed value.
	ErrOptionInvalid = xerrors.New("pool: invalid option value")
	// ErrTimeout means a bounded wait (future.Limit) expired.
	ErrTimeout = xerrors.New("pool: timed out")
)

// canceledTag marks an arbitrary error as a cancellation so IsCanceled can
// recognize it regardless of the underlying reason.
type canceledTag struct {
	err error
}

func (c canceledTag) Error() string { return c.err.Error() }
func (c canceledTag) Unwrap() error { return c.err }
func (c canceledTag) Is(target error) bool {
	return target == ErrCanceled
}

// Cancel tags err as a cancellation error. A nil err is replaced with
// ErrCanceled.
func Cancel(err error) error {
	if err == nil {
		err = ErrCanceled
	}
	if _, ok := err.(canceledTag); ok {
		return err
	}
	return canceledTag{err: err}
}

// IsCanceled reports whether err was produced by Cancel (directly or
// through a wrap chain), or is ErrCanceled itself.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	var tag canceledTag
	if xerrors.As(err, &tag) {
		return true
	}
	return xerrors.Is(err, ErrCanceled)
}

// Wrap annotates err with msg, preserving the error chain for errors.Is/As.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with Printf-style formatting of msg.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
