// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Package docpipe implements asynchronous job execution with at-least-once
// delivery and effectively-once side effects.
//
// Applications first create a Manager and register one Handler per job
// type. The manager pulls leased deliveries from a Queue (an in-memory
// queue by default, a Redis-backed queue in the "redis" package), looks up
// the handler for the envelope's job type, and settles the delivery based
// on the returned Outcome: Completed acks, Failed retries with backoff
// until MaxAttempts, Poisoned dead-letters immediately.
//
// Because the transport may deliver a message more than once, every handler
// wraps its side effect in a Guard keyed by the envelope's idempotency key.
// The guard consults a Coordinator (a shared cache, Redis in production):
// a processed marker short-circuits duplicates, a processing lock excludes
// concurrent workers, and the lock is released on every exit path with its
// TTL as the backstop for crashed workers.
//
// Multi-stage pipelines (upload finalization, profile extraction, search
// indexing) chain by enqueueing the next stage's envelope after the current
// stage's own side effect succeeded. Each stage carries its own
// deterministic idempotency key, so redeliveries of one stage never corrupt
// another's dedup. A chaining failure is logged and counted but never fails
// the stage that already completed its work.
//
// Progress is reported through a Tracker: a per-job status record that
// clients poll or stream. The tracker is a read model only; a failed status
// write never changes a handler's outcome.
package docpipe
