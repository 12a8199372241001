// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	r "github.com/redis/go-redis/v9"

	"github.com/docpipe/docpipe"
)

const (
	defaultVisibility    = 5 * time.Minute
	sweepInterval        = 1 * time.Second
	sweepBatch           = 200
	receiveBlockInterval = 2 * time.Second
)

// Queue implements docpipe.Queue on Redis.
//
// Layout per queue name: a ready list fed by producers, a processing list
// holding leased messages, a lease ZSET scored by lease expiry, a delay
// ZSET scored by redelivery time, and a dead-letter list. A background
// sweeper promotes due delayed messages and requeues expired leases, which
// is what makes delivery at-least-once rather than at-most-once.
type Queue struct {
	rdb        *r.Client
	name       string
	visibility time.Duration
	logger     docpipe.Logger

	mu      sync.Mutex
	stopped chan struct{}
	done    sync.WaitGroup
	closed  bool
}

// QueueOption is an options provider for Queue.
type QueueOption func(*Queue)

// SetVisibility sets the processing lease granted per delivery.
func SetVisibility(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// SetQueueLogger sets the logger used by the background sweeper.
func SetQueueLogger(logger docpipe.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQueue creates a queue and starts its sweeper. Call Close to stop it.
func NewQueue(rdb *r.Client, name string, options ...QueueOption) *Queue {
	q := &Queue{
		rdb:        rdb,
		name:       name,
		visibility: defaultVisibility,
		logger:     nopLogger{},
		stopped:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(q)
	}
	q.done.Add(1)
	go q.sweep()
	return q
}

type nopLogger struct{}

func (nopLogger) Printf(format string, v ...interface{}) {}

func (q *Queue) readyKey() string      { return "docpipe:q:" + q.name + ":ready" }
func (q *Queue) processingKey() string { return "docpipe:q:" + q.name + ":processing" }
func (q *Queue) leaseKey() string      { return "docpipe:q:" + q.name + ":lease" }
func (q *Queue) delayKey() string      { return "docpipe:q:" + q.name + ":delay" }
func (q *Queue) deadKey() string       { return "docpipe:q:" + q.name + ":dead" }
func (q *Queue) ackedKey() string      { return "docpipe:q:" + q.name + ":acked" }

// Enqueue implements docpipe.Queue.
func (q *Queue) Enqueue(ctx context.Context, e *docpipe.Envelope) error {
	data, err := docpipe.EncodeEnvelope(e)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.readyKey(), data).Err()
}

// Receive implements docpipe.Queue. The raw message is the receipt: settling
// operations remove it by value from the processing list and lease ZSET.
func (q *Queue) Receive(ctx context.Context) (*docpipe.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := q.rdb.BLMove(ctx, q.readyKey(), q.processingKey(), "RIGHT", "LEFT", receiveBlockInterval).Result()
		if errors.Is(err, r.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		expiry := time.Now().Add(q.visibility)
		if err := q.rdb.ZAdd(ctx, q.leaseKey(), r.Z{Score: float64(expiry.Unix()), Member: raw}).Err(); err != nil {
			return nil, err
		}
		e, err := docpipe.DecodeEnvelope([]byte(raw))
		if err != nil {
			// Unparseable message: straight to the dead-letter list.
			q.logger.Printf("docpipe/redis: dropping undecodable message: %v", err)
			pipe := q.rdb.TxPipeline()
			pipe.LRem(ctx, q.processingKey(), 1, raw)
			pipe.ZRem(ctx, q.leaseKey(), raw)
			pipe.LPush(ctx, q.deadKey(), raw)
			if _, perr := pipe.Exec(ctx); perr != nil {
				return nil, perr
			}
			continue
		}
		return &docpipe.Delivery{
			Envelope:       e,
			LeaseExpiresAt: expiry,
			Receipt:        raw,
		}, nil
	}
}

// Ack implements docpipe.Queue.
func (q *Queue) Ack(ctx context.Context, d *docpipe.Delivery) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, d.Receipt)
	pipe.ZRem(ctx, q.leaseKey(), d.Receipt)
	pipe.Incr(ctx, q.ackedKey())
	_, err := pipe.Exec(ctx)
	return err
}

// Retry implements docpipe.Queue.
func (q *Queue) Retry(ctx context.Context, d *docpipe.Delivery, delay time.Duration) error {
	next := *d.Envelope
	next.Attempt++
	data, err := docpipe.EncodeEnvelope(&next)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay)
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, d.Receipt)
	pipe.ZRem(ctx, q.leaseKey(), d.Receipt)
	if delay <= 0 {
		pipe.LPush(ctx, q.readyKey(), data)
	} else {
		pipe.ZAdd(ctx, q.delayKey(), r.Z{Score: float64(due.Unix()), Member: data})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeadLetter implements docpipe.Queue.
func (q *Queue) DeadLetter(ctx context.Context, d *docpipe.Delivery, reason string) error {
	entry, err := json.Marshal(struct {
		Envelope *docpipe.Envelope `json:"envelope"`
		Reason   string            `json:"reason"`
		At       time.Time         `json:"at"`
	}{d.Envelope, reason, time.Now().UTC()})
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, d.Receipt)
	pipe.ZRem(ctx, q.leaseKey(), d.Receipt)
	pipe.LPush(ctx, q.deadKey(), entry)
	_, err = pipe.Exec(ctx)
	return err
}

// Stats implements docpipe.StatsReporter.
func (q *Queue) Stats(ctx context.Context) (docpipe.Stats, error) {
	var stats docpipe.Stats
	ready, err := q.rdb.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return stats, err
	}
	delayed, err := q.rdb.ZCard(ctx, q.delayKey()).Result()
	if err != nil {
		return stats, err
	}
	working, err := q.rdb.LLen(ctx, q.processingKey()).Result()
	if err != nil {
		return stats, err
	}
	dead, err := q.rdb.LLen(ctx, q.deadKey()).Result()
	if err != nil {
		return stats, err
	}
	acked, err := q.rdb.Get(ctx, q.ackedKey()).Int()
	if err != nil && !errors.Is(err, r.Nil) {
		return stats, err
	}
	stats.Waiting = int(ready + delayed)
	stats.Working = int(working)
	stats.Succeeded = acked
	stats.DeadLettered = int(dead)
	return stats, nil
}

// Close stops the sweeper. It does not close the underlying client.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.stopped)
	q.done.Wait()
	return nil
}

// sweep periodically promotes due delayed messages into the ready list and
// requeues messages whose lease expired without being settled.
func (q *Queue) sweep() {
	defer q.done.Done()
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-q.stopped:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepInterval)
			now := time.Now().Unix()
			if err := q.promoteDue(ctx, now); err != nil {
				q.logger.Printf("docpipe/redis: promote due: %v", err)
			}
			if err := q.requeueExpired(ctx, now); err != nil {
				q.logger.Printf("docpipe/redis: requeue expired: %v", err)
			}
			cancel()
		}
	}
}

func (q *Queue) promoteDue(ctx context.Context, now int64) error {
	msgs, err := q.rdb.ZRangeByScore(ctx, q.delayKey(), &r.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10), Offset: 0, Count: sweepBatch,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return err
	}
	pipe := q.rdb.TxPipeline()
	for _, msg := range msgs {
		pipe.LPush(ctx, q.readyKey(), msg)
		pipe.ZRem(ctx, q.delayKey(), msg)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (q *Queue) requeueExpired(ctx context.Context, now int64) error {
	msgs, err := q.rdb.ZRangeByScore(ctx, q.leaseKey(), &r.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10), Offset: 0, Count: sweepBatch,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return err
	}
	pipe := q.rdb.TxPipeline()
	for _, msg := range msgs {
		pipe.LRem(ctx, q.processingKey(), 1, msg)
		pipe.ZRem(ctx, q.leaseKey(), msg)
		pipe.LPush(ctx, q.readyKey(), msg)
	}
	_, err = pipe.Exec(ctx)
	return err
}
