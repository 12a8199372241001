// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"sync"
	"time"
)

// InMemoryCoordinator is a process-local Coordinator implementation for
// tests and single-instance development. It cannot coordinate across
// instances; production deployments use the Redis coordinator.
type InMemoryCoordinator struct {
	mu        sync.Mutex
	locks     map[string]time.Time // key -> lock expiry
	processed map[string]time.Time // key -> marker expiry
	nowFn     func() time.Time     // overridable in tests
}

// NewInMemoryCoordinator creates a new InMemoryCoordinator.
func NewInMemoryCoordinator() *InMemoryCoordinator {
	return &InMemoryCoordinator{
		locks:     make(map[string]time.Time),
		processed: make(map[string]time.Time),
		nowFn:     time.Now,
	}
}

// IsProcessed reports whether a live processed marker exists for the key.
func (c *InMemoryCoordinator) IsProcessed(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, found := c.processed[key]
	if !found {
		return false, nil
	}
	if c.nowFn().After(expiry) {
		delete(c.processed, key)
		return false, nil
	}
	return true, nil
}

// TryAcquire atomically takes the processing lock if it is absent or expired.
func (c *InMemoryCoordinator) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFn()
	if expiry, found := c.locks[key]; found && now.Before(expiry) {
		return false, nil
	}
	c.locks[key] = now.Add(ttl)
	return true, nil
}

// MarkProcessed sets the processed marker for the key.
func (c *InMemoryCoordinator) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed[key] = c.nowFn().Add(ttl)
	return nil
}

// Release removes the processing lock for the key.
func (c *InMemoryCoordinator) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, key)
	return nil
}
