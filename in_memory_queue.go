// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DeadLetter is an envelope removed from the retry path, with the reason.
type DeadLetter struct {
	Envelope *Envelope
	Reason   string
}

// InMemoryQueue is a process-local Queue implementation. It is the default
// for tests and single-instance development. It honors the Retry delay but
// does not expire leases; production deployments use the Redis queue.
type InMemoryQueue struct {
	mu         sync.Mutex
	ch         chan *Envelope
	visibility time.Duration
	closed     bool
	inflight   int
	acked      int
	dead       []DeadLetter
}

// NewInMemoryQueue creates a new InMemoryQueue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		ch:         make(chan *Envelope, 1024),
		visibility: 30 * time.Second,
	}
}

// Enqueue submits an envelope. The send happens under the mutex so that
// Close cannot close the channel between the closed check and the send;
// the delayed-retry timer may call this at any point during shutdown.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e *Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return errors.New("docpipe: in-memory queue full")
	}
}

// Receive blocks until an envelope is available or ctx is done.
func (q *InMemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case e, more := <-q.ch:
		if !more {
			return nil, ErrQueueClosed
		}
		q.mu.Lock()
		q.inflight++
		q.mu.Unlock()
		return &Delivery{
			Envelope:       e,
			LeaseExpiresAt: time.Now().Add(q.visibility),
			Receipt:        e.JobID,
		}, nil
	}
}

// Ack settles the delivery.
func (q *InMemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	q.acked++
	return nil
}

// Retry settles the delivery and redelivers after delay with the attempt
// counter incremented.
func (q *InMemoryQueue) Retry(ctx context.Context, d *Delivery, delay time.Duration) error {
	q.mu.Lock()
	q.inflight--
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}
	next := *d.Envelope
	next.Attempt++
	if delay <= 0 {
		return q.Enqueue(ctx, &next)
	}
	time.AfterFunc(delay, func() {
		_ = q.Enqueue(context.Background(), &next)
	})
	return nil
}

// DeadLetter settles the delivery and records it with the reason.
func (q *InMemoryQueue) DeadLetter(ctx context.Context, d *Delivery, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	q.dead = append(q.dead, DeadLetter{Envelope: d.Envelope, Reason: reason})
	return nil
}

// DeadLetters returns a copy of the dead-lettered envelopes.
func (q *InMemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.dead))
	copy(out, q.dead)
	return out
}

// Stats reports queue depth counters.
func (q *InMemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Waiting:      len(q.ch),
		Working:      q.inflight,
		Succeeded:    q.acked,
		DeadLettered: len(q.dead),
	}, nil
}

// Close stops the queue. Subsequent Receive calls return ErrQueueClosed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}
