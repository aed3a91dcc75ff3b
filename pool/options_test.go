package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowpool/asyncpool/poolerr"
)

func TestSetOptionsGrowsOnMaxOpenCountIncrease(t *testing.T) {
	factory := &monotonicFactory{}
	opts := DefaultOptions()
	opts.MaxOpenCount = 1
	p, err := New[*testItem](factory, opts)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Get(context.Background()).Await(); err != nil {
		t.Fatal(err)
	}

	pending := p.Get(context.Background())
	eventually(t, time.Second, func() bool { return p.Stats().WaitCount == 1 })

	two := 2
	if err := p.SetOptions(OptionsPatch{MaxOpenCount: &two}); err != nil {
		t.Fatal(err)
	}

	if _, err := pending.Await(); err != nil {
		t.Fatal(err)
	}
	if got := p.Stats().WaitCount; got != 0 {
		t.Fatalf("WaitCount = %d, want 0", got)
	}
}

func TestSetOptionsClearsSweepWhenBothLimitsDisabled(t *testing.T) {
	factory := &monotonicFactory{}
	opts := DefaultOptions()
	opts.MaxLifetime = 20 * time.Millisecond
	opts.MaxIdleCount = 4
	p, err := New[*testItem](factory, opts)
	if err != nil {
		t.Fatal(err)
	}

	item, err := p.Get(context.Background()).Await()
	if err != nil {
		t.Fatal(err)
	}
	p.Release(item)

	unlimited := time.Duration(-1)
	if err := p.SetOptions(OptionsPatch{MaxLifetime: &unlimited}); err != nil {
		t.Fatal(err)
	}

	// give the original (now-superseded) sweep deadline time to have fired
	// had it not been cleared
	time.Sleep(50 * time.Millisecond)
	if got := p.Stats().IdleCount; got != 1 {
		t.Fatalf("IdleCount = %d, want 1 (sweep should have been cleared)", got)
	}
}

func TestSetOptionsSchedulesImmediateSweepOnTighterLimit(t *testing.T) {
	factory := &monotonicFactory{}
	opts := DefaultOptions()
	opts.MaxIdleCount = 4
	p, err := New[*testItem](factory, opts)
	if err != nil {
		t.Fatal(err)
	}

	item, err := p.Get(context.Background()).Await()
	if err != nil {
		t.Fatal(err)
	}
	p.Release(item)
	if got := p.Stats().IdleCount; got != 1 {
		t.Fatalf("IdleCount = %d, want 1 before tightening MaxIdleTime", got)
	}

	tight := 5 * time.Millisecond
	if err := p.SetOptions(OptionsPatch{MaxIdleTime: &tight}); err != nil {
		t.Fatal(err)
	}

	eventually(t, time.Second, func() bool {
		s := p.Stats()
		return s.IdleCount == 0 && s.MaxIdleTimeClosed == 1
	})
}

func TestSetOptionsResizesCreateGateForSerialMode(t *testing.T) {
	factory := &monotonicFactory{}
	p, err := New[*testItem](factory, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	serial := false
	if err := p.SetOptions(OptionsPatch{ParallelCreate: &serial}); err != nil {
		t.Fatal(err)
	}

	pa := p.Get(context.Background())
	pb := p.Get(context.Background())

	a, err := pa.Await()
	if err != nil {
		t.Fatal(err)
	}
	b, err := pb.Await()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected two distinct items even serialized")
	}
}

func TestSetOptionsNegativeOrZeroMaxIdleCountDoesNotShrinkIdle(t *testing.T) {
	factory := &monotonicFactory{}
	opts := DefaultOptions()
	opts.MaxIdleCount = 4
	opts.MaxOpenCount = 4
	p, err := New[*testItem](factory, opts)
	if err != nil {
		t.Fatal(err)
	}

	items := make([]*testItem, 3)
	for i := range items {
		v, err := p.Get(context.Background()).Await()
		if err != nil {
			t.Fatal(err)
		}
		items[i] = v
	}
	for _, it := range items {
		p.Release(it)
	}
	if got := p.Stats().IdleCount; got != 3 {
		t.Fatalf("IdleCount = %d, want 3 before any SetOptions call", got)
	}

	// Setting MaxIdleCount to a negative (unlimited) value must not touch
	// the idle pool.
	unlimited := -1
	if err := p.SetOptions(OptionsPatch{MaxIdleCount: &unlimited}); err != nil {
		t.Fatal(err)
	}
	if got := p.Stats().IdleCount; got != 3 {
		t.Fatalf("IdleCount = %d, want 3 after setting MaxIdleCount=-1 (unlimited)", got)
	}

	zero := 0
	serial := false
	if err := p.SetOptions(OptionsPatch{MaxIdleCount: &zero, ParallelCreate: &serial}); err != nil {
		t.Fatal(err)
	}
	if got := p.Stats().IdleCount; got != 3 {
		t.Fatalf("IdleCount = %d, want 3 after setting MaxIdleCount=0 (also unlimited)", got)
	}
	if got := p.Stats().MaxIdleClosed; got != 0 {
		t.Fatalf("MaxIdleClosed = %d, want 0: a non-positive MaxIdleCount must never shrink idle", got)
	}
}

func TestSetOptionsPositiveMaxIdleCountStillShrinks(t *testing.T) {
	factory := &monotonicFactory{}
	opts := DefaultOptions()
	opts.MaxIdleCount = 4
	opts.MaxOpenCount = 4
	p, err := New[*testItem](factory, opts)
	if err != nil {
		t.Fatal(err)
	}

	items := make([]*testItem, 3)
	for i := range items {
		v, err := p.Get(context.Background()).Await()
		if err != nil {
			t.Fatal(err)
		}
		items[i] = v
	}
	for _, it := range items {
		p.Release(it)
	}

	one := 1
	if err := p.SetOptions(OptionsPatch{MaxIdleCount: &one}); err != nil {
		t.Fatal(err)
	}
	if got := p.Stats().IdleCount; got != 1 {
		t.Fatalf("IdleCount = %d, want 1 after shrinking MaxIdleCount to 1", got)
	}
	if got := p.Stats().MaxIdleClosed; got != 2 {
		t.Fatalf("MaxIdleClosed = %d, want 2", got)
	}
}

func TestSetOptionsOnClosedPoolIsHarmless(t *testing.T) {
	factory := &monotonicFactory{}
	p, err := New[*testItem](factory, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Close(nil).Await(); err != nil {
		t.Fatal(err)
	}

	two := 2
	if err := p.SetOptions(OptionsPatch{MaxOpenCount: &two}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Get(context.Background()).Await(); !errors.Is(err, poolerr.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
