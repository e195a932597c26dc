package importer

import (
	"context"
	"testing"
	"time"
)

func TestLockGuard_AcquireIsExclusive(t *testing.T) {
	kv := newMemKV()
	guard := NewLockGuard(kv, StaleThreshold)
	ctx := context.Background()

	ok, err := guard.TryAcquire(ctx, "owner-a")
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if !ok {
		t.Fatal("first TryAcquire() = false, want true")
	}

	ok, err = guard.TryAcquire(ctx, "owner-b")
	if err != nil {
		t.Fatalf("second TryAcquire() error = %v", err)
	}
	if ok {
		t.Error("second TryAcquire() = true, want false")
	}

	held, err := guard.IsHeld(ctx)
	if err != nil {
		t.Fatalf("IsHeld() error = %v", err)
	}
	if !held {
		t.Error("IsHeld() = false, want true")
	}
}

func TestLockGuard_ReleaseAllowsReacquire(t *testing.T) {
	kv := newMemKV()
	guard := NewLockGuard(kv, StaleThreshold)
	ctx := context.Background()

	if ok, _ := guard.TryAcquire(ctx, "owner-a"); !ok {
		t.Fatal("TryAcquire() = false, want true")
	}
	if err := guard.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	held, err := guard.IsHeld(ctx)
	if err != nil {
		t.Fatalf("IsHeld() error = %v", err)
	}
	if held {
		t.Error("IsHeld() after release = true, want false")
	}

	if ok, _ := guard.TryAcquire(ctx, "owner-b"); !ok {
		t.Error("TryAcquire() after release = false, want true")
	}
}

func TestLockGuard_StaleLockSelfHeals(t *testing.T) {
	kv := newMemKV()
	guard := NewLockGuard(kv, StaleThreshold)
	ctx := context.Background()

	now := time.Now()
	guard.now = func() time.Time { return now }

	if ok, _ := guard.TryAcquire(ctx, "crashed-run"); !ok {
		t.Fatal("TryAcquire() = false, want true")
	}

	// Just under the threshold: still held.
	guard.now = func() time.Time { return now.Add(StaleThreshold - time.Second) }
	if held, _ := guard.IsHeld(ctx); !held {
		t.Error("IsHeld() just under threshold = false, want true")
	}

	// Past the threshold: force-cleared on read.
	guard.now = func() time.Time { return now.Add(StaleThreshold + time.Second) }
	held, err := guard.IsHeld(ctx)
	if err != nil {
		t.Fatalf("IsHeld() error = %v", err)
	}
	if held {
		t.Error("IsHeld() past threshold = true, want false")
	}
	if kv.has(KeyLock) {
		t.Error("stale lock record still present after reconcile")
	}

	if ok, _ := guard.TryAcquire(ctx, "new-run"); !ok {
		t.Error("TryAcquire() after stale clear = false, want true")
	}
}

func TestLockGuard_CorruptLockTreatedAsStale(t *testing.T) {
	kv := newMemKV()
	guard := NewLockGuard(kv, StaleThreshold)
	ctx := context.Background()

	if err := kv.Set(ctx, KeyLock, []byte("not json")); err != nil {
		t.Fatal(err)
	}

	held, err := guard.IsHeld(ctx)
	if err != nil {
		t.Fatalf("IsHeld() error = %v", err)
	}
	if held {
		t.Error("IsHeld() with corrupt payload = true, want false")
	}
	if kv.has(KeyLock) {
		t.Error("corrupt lock record still present after reconcile")
	}
}

func TestLockGuard_Age(t *testing.T) {
	kv := newMemKV()
	guard := NewLockGuard(kv, StaleThreshold)
	ctx := context.Background()

	now := time.Unix(1700000000, 0)
	guard.now = func() time.Time { return now }

	if ok, _ := guard.TryAcquire(ctx, "owner"); !ok {
		t.Fatal("TryAcquire() = false, want true")
	}

	guard.now = func() time.Time { return now.Add(3 * time.Minute) }
	age, err := guard.Age(ctx)
	if err != nil {
		t.Fatalf("Age() error = %v", err)
	}
	if age != 3*time.Minute {
		t.Errorf("Age() = %v, want 3m", age)
	}
}
