package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// testItem is the pool's test resource: a pointer so distinct items are
// distinct map keys even if their contents are equal.
type testItem struct {
	id int
}

// testFactory is a controllable Factory[*testItem] for exercising the pool
// without a real network resource, the same role the teacher lineage's
// MockFactory (net.Pipe-backed) plays for ChannelPool's tests.
type testFactory struct {
	mu sync.Mutex

	nextID       int
	created      []*testItem
	destroyed    []*testItem
	failCreate   bool
	failAlways   error
	resetErr     func(*testItem) error
	beforeCreate func()
}

func (f *testFactory) Create(ctx context.Context) (*testItem, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAlways != nil {
		return nil, f.failAlways
	}
	if f.failCreate {
		return nil, errors.New("create failed")
	}
	f.nextID++
	item := &testItem{id: f.nextID}
	f.created = append(f.created, item)
	return item, nil
}

func (f *testFactory) Destroy(ctx context.Context, item *testItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, item)
	return nil
}

func (f *testFactory) Reset(item *testItem) error {
	if f.resetErr != nil {
		return f.resetErr(item)
	}
	return nil
}

func (f *testFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *testFactory) destroyedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.destroyed)
}

// monotonicFactory hands out strictly increasing IDs and never fails; used
// where a test wants to assert identity (S1).
type monotonicFactory struct {
	counter int64
}

func (f *monotonicFactory) Create(ctx context.Context) (*testItem, error) {
	id := atomic.AddInt64(&f.counter, 1)
	return &testItem{id: int(id)}, nil
}

func (f *monotonicFactory) Destroy(ctx context.Context, item *testItem) error {
	return nil
}

// alwaysFailFactory fails every Create, for the 10-strike rule (S5).
type alwaysFailFactory struct {
	attempts int64
}

func (f *alwaysFailFactory) Create(ctx context.Context) (*testItem, error) {
	atomic.AddInt64(&f.attempts, 1)
	return nil, errors.New("detector unreachable")
}

func (f *alwaysFailFactory) Destroy(ctx context.Context, item *testItem) error {
	return nil
}
