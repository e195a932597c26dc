package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Lock staleness thresholds. A lock past WarnThreshold is probably stuck
// and flagged by health checks; past StaleThreshold it is definitely stuck
// and force-cleared on the next read.
const (
	WarnThreshold  = 10 * time.Minute
	StaleThreshold = 15 * time.Minute
)

// lockRecord is the persisted lock payload.
type lockRecord struct {
	LockedAt int64  `json:"locked_at"`
	Owner    string `json:"owner"`
	PID      int    `json:"pid"`
}

// LockGuard is the mutual-exclusion guard around import runs: at most one
// live lock exists at a time. Acquisition is an atomic set-if-absent
// against the KV store, so two concurrent acquirers cannot both win.
// A lock older than the stale threshold is treated as absent and cleared
// lazily on read, so a crashed run self-heals the next time anyone asks.
type LockGuard struct {
	kv         KV
	staleAfter time.Duration
	now        func() time.Time
}

// NewLockGuard builds a guard over kv. A non-positive staleAfter falls
// back to StaleThreshold.
func NewLockGuard(kv KV, staleAfter time.Duration) *LockGuard {
	if staleAfter <= 0 {
		staleAfter = StaleThreshold
	}
	return &LockGuard{kv: kv, staleAfter: staleAfter, now: time.Now}
}

// TryAcquire attempts to take the lock for owner. It first reconciles any
// stale lock, then does an atomic set-if-absent. Returns false when a live
// lock already exists.
func (g *LockGuard) TryAcquire(ctx context.Context, owner string) (bool, error) {
	if _, err := g.Reconcile(ctx); err != nil {
		return false, err
	}

	payload, err := json.Marshal(lockRecord{
		LockedAt: g.now().Unix(),
		Owner:    owner,
		PID:      os.Getpid(),
	})
	if err != nil {
		return false, fmt.Errorf("encoding lock: %w", err)
	}

	ok, err := g.kv.SetIfAbsent(ctx, KeyLock, payload)
	if err != nil {
		return false, fmt.Errorf("acquiring lock: %w", err)
	}
	return ok, nil
}

// IsHeld reports whether a live lock exists. Stale locks are force-cleared
// as a side effect and reported as not held.
func (g *LockGuard) IsHeld(ctx context.Context) (bool, error) {
	rec, err := g.Reconcile(ctx)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Age returns how long the current lock has been held, or zero when no
// live lock exists.
func (g *LockGuard) Age(ctx context.Context) (time.Duration, error) {
	rec, err := g.Reconcile(ctx)
	if err != nil || rec == nil {
		return 0, err
	}
	return g.now().Sub(time.Unix(rec.LockedAt, 0)), nil
}

// Release unconditionally deletes the lock.
func (g *LockGuard) Release(ctx context.Context) error {
	if err := g.kv.Delete(ctx, KeyLock); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

// Reconcile loads the lock and applies the staleness policy: a lock older
// than the stale threshold is deleted and treated as absent. It returns
// the live lock record, or nil when none exists. Called by every read path
// and by the daily maintenance sweep.
func (g *LockGuard) Reconcile(ctx context.Context) (*lockRecord, error) {
	raw, err := g.kv.Get(ctx, KeyLock)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock: %w", err)
	}

	var rec lockRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Unparseable lock payloads count as stale.
		if derr := g.kv.Delete(ctx, KeyLock); derr != nil {
			return nil, fmt.Errorf("clearing corrupt lock: %w", derr)
		}
		return nil, nil
	}

	age := g.now().Sub(time.Unix(rec.LockedAt, 0))
	if age > g.staleAfter {
		if err := g.kv.Delete(ctx, KeyLock); err != nil {
			return nil, fmt.Errorf("clearing stale lock: %w", err)
		}
		return nil, nil
	}

	return &rec, nil
}
