// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"time"
)

// Delivery is one leased attempt at an envelope. The transport may deliver
// the same envelope more than once; LeaseExpiresAt bounds how long this
// attempt may run before the transport hands it to someone else.
type Delivery struct {
	Envelope       *Envelope
	LeaseExpiresAt time.Time

	// Receipt is the transport-specific token needed to settle the
	// delivery. Opaque to everything but the queue that issued it.
	Receipt string
}

// Queue is the generic at-least-once transport the manager pulls from.
//
// Semantics required of implementations: a delivery that is neither acked,
// retried, nor dead-lettered before its lease expires must become receivable
// again; Retry schedules a redelivery with the attempt counter incremented;
// ordering across envelopes is not guaranteed.
type Queue interface {
	// Enqueue submits an envelope for processing.
	Enqueue(ctx context.Context, e *Envelope) error

	// Receive blocks until a delivery is available or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)

	// Ack settles the delivery; the envelope is never delivered again.
	Ack(ctx context.Context, d *Delivery) error

	// Retry settles the delivery and schedules a redelivery after delay.
	Retry(ctx context.Context, d *Delivery, delay time.Duration) error

	// DeadLetter settles the delivery and removes the envelope from the
	// retry path, recording the reason.
	DeadLetter(ctx context.Context, d *Delivery, reason string) error
}

// StatsReporter is implemented by queues that can report depth counters.
type StatsReporter interface {
	Stats(ctx context.Context) (Stats, error)
}
