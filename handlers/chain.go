// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package handlers

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/docpipe/docpipe"
)

// Chainer enqueues the next pipeline stage after the current stage's own
// side effect succeeded.
//
// An enqueue failure never fails the calling stage: the stage's unit of
// work is already done, and invalidating it over a transient queue outage
// would redo a completed side effect. Failures are logged and counted as a
// monitoring signal instead.
type Chainer struct {
	queue    docpipe.Queue
	log      *zap.Logger
	failures atomic.Int64
}

// NewChainer creates a chainer on top of the transport.
func NewChainer(queue docpipe.Queue, log *zap.Logger) *Chainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chainer{queue: queue, log: log}
}

// Next enqueues one envelope for the following stage. The stage gets a
// fresh, stage-scoped idempotency key; the correlation and tracking ids
// carry over from the parent.
func (c *Chainer) Next(ctx context.Context, parent *docpipe.Envelope, jobType, key string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.failures.Add(1)
		c.log.Error("chain: marshal next-stage payload",
			zap.String("job_type", jobType),
			zap.String("correlation_id", parent.CorrelationID),
			zap.Error(err))
		return
	}
	next := parent.NextStage(jobType, key, data)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 1 * time.Second
	op := func() error {
		return c.queue.Enqueue(ctx, next)
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx)); err != nil {
		c.failures.Add(1)
		c.log.Warn("chain: next-stage enqueue failed, current stage stays completed",
			zap.String("job_type", jobType),
			zap.String("job_id", next.JobID),
			zap.String("correlation_id", parent.CorrelationID),
			zap.Error(err))
		return
	}
	c.log.Info("chain: next stage queued",
		zap.String("job_type", jobType),
		zap.String("job_id", next.JobID),
		zap.String("idempotency_key", key),
		zap.String("correlation_id", parent.CorrelationID))
}

// Failures returns the number of dropped next-stage enqueues since start.
func (c *Chainer) Failures() int64 {
	return c.failures.Load()
}
