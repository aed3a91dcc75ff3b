package pool

import (
	"time"

	"github.com/flowpool/asyncpool/future"
	"github.com/google/uuid"
)

// element pairs a factory item with its timestamps. idledAt.IsZero() means
// the element is active (lent out); any other value means it is idle.
type element[T any] struct {
	item      T
	createdAt time.Time
	idledAt   time.Time
	// id is carried purely for diagnostics (a foreign-release error names
	// it when one can still be found); it plays no role in scheduling.
	id uuid.UUID
}

func newElement[T any](item T) *element[T] {
	return &element[T]{item: item, createdAt: time.Now(), id: uuid.New()}
}

// waiter is a queued Get() request. enqueuedAt feeds Stats.WaitDuration.
type waiter[T any] struct {
	promise    *future.Promise[T]
	enqueuedAt time.Time
}
