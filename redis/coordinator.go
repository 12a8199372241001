// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Package redis provides the Redis-backed production implementations of the
// docpipe coordinator, queue, and status store. The shared Redis instance is
// the only cross-instance coordination point.
package redis

import (
	"context"
	"time"

	r "github.com/redis/go-redis/v9"
)

// Coordinator implements docpipe.Coordinator on a shared Redis instance.
//
// Lock entries are plain SETNX keys with a TTL; release is an unconditional
// delete. A lock that expires mid-execution can admit a second worker, an
// accepted race under the effectively-once guarantee.
type Coordinator struct {
	rdb    *r.Client
	prefix string
}

// NewCoordinator creates a coordinator. prefix namespaces the keys so
// several deployments can share one Redis instance.
func NewCoordinator(rdb *r.Client, prefix string) *Coordinator {
	if prefix == "" {
		prefix = "docpipe"
	}
	return &Coordinator{rdb: rdb, prefix: prefix}
}

func (c *Coordinator) lockKey(key string) string { return c.prefix + ":lock:" + key }
func (c *Coordinator) doneKey(key string) string { return c.prefix + ":done:" + key }

// IsProcessed implements docpipe.Coordinator.
func (c *Coordinator) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.doneKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TryAcquire implements docpipe.Coordinator.
func (c *Coordinator) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, c.lockKey(key), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

// MarkProcessed implements docpipe.Coordinator.
func (c *Coordinator) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.doneKey(key), time.Now().UTC().Format(time.RFC3339Nano), ttl).Err()
}

// Release implements docpipe.Coordinator.
func (c *Coordinator) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.lockKey(key)).Err()
}
