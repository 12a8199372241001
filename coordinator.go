// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"time"
)

const (
	// DefaultLockTTL bounds how long a crashed worker can strand a key.
	DefaultLockTTL = 10 * time.Minute
	// DefaultProcessedTTL bounds storage growth while covering realistic
	// redelivery windows.
	DefaultProcessedTTL = 7 * 24 * time.Hour
)

// Coordinator is the shared-cache-backed dedup and mutual-exclusion
// primitive every handler consults. Implementations must be safe for use
// across processes; process-local state cannot substitute for it.
type Coordinator interface {
	// IsProcessed reports whether the key's side effect already completed.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// TryAcquire atomically sets a processing lock if absent. It returns
	// false when another worker currently holds the key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// MarkProcessed records that the key's side effect completed. Called
	// only after a successful side effect.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) error

	// Release removes the processing lock. It must be safe to call on a
	// key that is not locked.
	Release(ctx context.Context, key string) error
}

// Guard runs a unit of work at most once per idempotency key. It is the
// scoped acquisition every handler wraps its side effect in.
type Guard struct {
	Coordinator  Coordinator
	LockTTL      time.Duration // zero means DefaultLockTTL
	ProcessedTTL time.Duration // zero means DefaultProcessedTTL
	Logger       Logger        // nil means no logging
}

// NewGuard returns a Guard with the default TTLs.
func NewGuard(c Coordinator, logger Logger) Guard {
	return Guard{Coordinator: c, Logger: logger}
}

// WithLockTTL returns a copy of the guard using the given lock TTL. Stages
// that legitimately run longer than the default can widen their own lock
// without loosening every other stage.
func (g Guard) WithLockTTL(ttl time.Duration) Guard {
	g.LockTTL = ttl
	return g
}

// Run executes fn under the key's processing lock.
//
// Already-processed keys and lock contention both short-circuit to
// Completed: the first is the idempotent skip, the second avoids a retry
// storm while another instance works. The lock is released on every exit
// path; the TTL is only the backstop for a crashed worker.
func (g Guard) Run(ctx context.Context, key string, fn func(context.Context) Outcome) Outcome {
	lockTTL := g.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	processedTTL := g.ProcessedTTL
	if processedTTL <= 0 {
		processedTTL = DefaultProcessedTTL
	}

	done, err := g.Coordinator.IsProcessed(ctx, key)
	if err != nil {
		// Coordinator unreachable: retry rather than risk a duplicate.
		return Failed(CodeUnavailable, err)
	}
	if done {
		return Completed()
	}

	acquired, err := g.Coordinator.TryAcquire(ctx, key, lockTTL)
	if err != nil {
		return Failed(CodeUnavailable, err)
	}
	if !acquired {
		return Completed()
	}
	defer func() {
		if err := g.Coordinator.Release(context.WithoutCancel(ctx), key); err != nil {
			g.logf("docpipe: release lock %q: %v", key, err)
		}
	}()

	out := fn(ctx)
	if out.Status != StatusCompleted {
		return out
	}
	if err := g.Coordinator.MarkProcessed(context.WithoutCancel(ctx), key, processedTTL); err != nil {
		// The side effect is done; failing here would redeliver and redo
		// it. Accept the narrower risk of a missing marker.
		g.logf("docpipe: mark processed %q: %v", key, err)
	}
	return out
}

func (g Guard) logf(format string, v ...interface{}) {
	if g.Logger != nil {
		g.Logger.Printf(format, v...)
	}
}
