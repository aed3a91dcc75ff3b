// Package pool implements a generic asynchronous resource pool: a bounded
// set of expensive-to-construct resources multiplexed between many
// concurrent requesters, with lifetime, idle-time, open-count, and
// idle-count limits, and graceful shutdown. The design is the teacher
// lineage's TCP ConnectionFactory/ChannelPool pair, generified and
// recomposed around the FIFO-wait-queue / LIFO-idle-stack model described
// for database/sql's own connection pool.
package pool

import "context"

// Factory is supplied by the caller and owned exclusively by the Pool:
// callers must never invoke Create or Destroy themselves.
type Factory[T any] interface {
	// Create returns a fresh resource, or an error.
	Create(ctx context.Context) (T, error)
	// Destroy releases a resource's underlying handles. It may return an
	// error, but the resource is considered destroyed either way.
	Destroy(ctx context.Context, item T) error
}

// Resetter is an optional interface a Factory may also implement. Reset
// runs synchronously on Release, before the item is offered to a waiter or
// pooled; returning an error discards the item instead.
type Resetter[T any] interface {
	Reset(item T) error
}

// Action identifies which factory method produced an error reported
// through OnError.
type Action int

const (
	ActionCreate Action = iota
	ActionDestroy
	ActionReset
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionDestroy:
		return "destroy"
	case ActionReset:
		return "reset"
	default:
		return "unknown"
	}
}
