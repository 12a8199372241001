// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultConcurrency = 5

func nop() {}

// Observer is notified whenever an envelope reaches a terminal settlement:
// acked after completion, or dead-lettered. Observers must not block.
type Observer func(e *Envelope, out Outcome)

// Manager pulls deliveries from the transport and drives them through the
// registered handlers. Create a new manager via New.
type Manager struct {
	logger     Logger
	queue      Queue
	dispatcher *Dispatcher
	backoff    BackoffFunc

	mu          sync.Mutex // guards the following block
	concurrency int        // number of parallel workers
	started     bool
	cancel      context.CancelFunc
	workersWg   sync.WaitGroup
	observers   []Observer

	testManagerStarted  func() // testing hook
	testManagerStopped  func() // testing hook
	testJobStarted      func() // testing hook
	testJobCompleted    func() // testing hook
	testJobRetried      func() // testing hook
	testJobDeadLettered func() // testing hook
}

// New creates a new manager. Pass options to Manager to configure it.
func New(options ...ManagerOption) *Manager {
	m := &Manager{
		logger:              stdLogger{},
		queue:               NewInMemoryQueue(),
		dispatcher:          NewDispatcher(),
		backoff:             exponentialBackoff,
		concurrency:         defaultConcurrency,
		testManagerStarted:  nop,
		testManagerStopped:  nop,
		testJobStarted:      nop,
		testJobCompleted:    nop,
		testJobRetried:      nop,
		testJobDeadLettered: nop,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// -- Configuration --

// ManagerOption is the signature of an options provider.
type ManagerOption func(*Manager)

// SetLogger specifies the logger to use when e.g. reporting errors.
func SetLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// SetQueue specifies the transport the manager pulls deliveries from.
// An in-memory queue is used by default.
func SetQueue(q Queue) ManagerOption {
	return func(m *Manager) {
		m.queue = q
	}
}

// SetBackoffFunc specifies the backoff function that returns the time span
// between redeliveries of failed jobs. Exponential backoff is used by default.
func SetBackoffFunc(fn BackoffFunc) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.backoff = fn
		} else {
			m.backoff = exponentialBackoff
		}
	}
}

// SetConcurrency sets the maximum number of workers that will run at the
// same time. Concurrency must be greater or equal to 1 and is 5 by default.
func SetConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		if n < 1 {
			n = 1
		}
		m.concurrency = n
	}
}

// Register registers a handler for its job type.
func (m *Manager) Register(h Handler) error {
	return m.dispatcher.Register(h)
}

// Observe adds an observer for terminal settlements.
func (m *Manager) Observe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Queue exposes the transport, e.g. for the pipeline chainer.
func (m *Manager) Queue() Queue {
	return m.queue
}

// -- Enqueue --

// Enqueue submits an envelope for asynchronous execution. Missing identity
// fields are filled in; the job type must have a registered handler so a
// misspelled tag fails at submission instead of dead-lettering later.
func (m *Manager) Enqueue(ctx context.Context, e *Envelope) error {
	if e.JobType == "" {
		return errors.New("docpipe: no job type specified")
	}
	if _, found := m.dispatcher.Lookup(e.JobType); !found {
		return fmt.Errorf("docpipe: job type %s not registered", e.JobType)
	}
	if e.JobID == "" {
		e.JobID = uuid.NewString()
	}
	if e.CorrelationID == "" {
		e.CorrelationID = uuid.NewString()
	}
	if e.Attempt < 1 {
		e.Attempt = 1
	}
	if e.MaxAttempts < 1 {
		e.MaxAttempts = DefaultMaxAttempts
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return m.queue.Enqueue(ctx, e)
}

// -- Start and Stop --

// Start runs the manager. Use Close or CloseWithTimeout to stop it.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("docpipe: manager already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	for i := 0; i < m.concurrency; i++ {
		m.workersWg.Add(1)
		go m.work(ctx)
	}
	m.started = true

	m.testManagerStarted() // testing hook

	return nil
}

// Close stops the manager and waits for working jobs to finish.
func (m *Manager) Close() error {
	return m.CloseWithTimeout(-1 * time.Second)
}

// CloseWithTimeout stops the manager. It waits for the specified timeout,
// then returns, even if there are still jobs working. If the timeout is
// negative, the manager waits forever for all working jobs to end.
func (m *Manager) CloseWithTimeout(timeout time.Duration) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.mu.Unlock()

	if timeout.Nanoseconds() < 0 {
		m.workersWg.Wait()
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		m.testManagerStopped() // testing hook
		return nil
	}

	complete := make(chan struct{})
	go func() {
		m.workersWg.Wait()
		close(complete)
	}()
	var err error
	select {
	case <-complete: // completed in time
	case <-time.After(timeout):
		err = errors.New("docpipe: close timed out")
	}

	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
	m.testManagerStopped() // testing hook
	return err
}

// -- Workers --

// work is the main loop of one worker goroutine.
func (m *Manager) work(ctx context.Context) {
	defer m.workersWg.Done()
	for {
		d, err := m.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			m.logger.Printf("docpipe: receive failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(1 * time.Second):
			}
			continue
		}
		m.process(ctx, d)
	}
}

// process runs a single delivery and settles it based on the outcome.
func (m *Manager) process(ctx context.Context, d *Delivery) {
	e := d.Envelope

	// Tie the attempt to the delivery lease: work that would outlive the
	// lease aborts and redelivers instead of overlapping a second worker.
	jctx := ctx
	if !d.LeaseExpiresAt.IsZero() {
		var cancel context.CancelFunc
		jctx, cancel = context.WithDeadline(ctx, d.LeaseExpiresAt)
		defer cancel()
	}

	h, found := m.dispatcher.Lookup(e.JobType)
	if !found {
		out := Poisonedf(CodeInvalidInput, "no handler for job type %s", e.JobType)
		m.deadLetter(ctx, d, out)
		return
	}

	m.testJobStarted() // testing hook

	out := m.invoke(jctx, h, e)
	switch out.Status {
	case StatusCompleted:
		if err := m.queue.Ack(ctx, d); err != nil {
			m.logger.Printf("docpipe: ack %s failed: %v", e.JobID, err)
			return
		}
		m.testJobCompleted() // testing hook
		m.notify(e, out)
	case StatusFailed:
		if e.Attempt >= e.MaxAttempts {
			m.deadLetter(ctx, d, out)
			return
		}
		delay := m.backoff(e.Attempt)
		if err := m.queue.Retry(ctx, d, delay); err != nil {
			m.logger.Printf("docpipe: retry %s failed: %v", e.JobID, err)
			return
		}
		m.testJobRetried() // testing hook
	default:
		m.deadLetter(ctx, d, out)
	}
}

// invoke calls the handler, converting a panic into a poisoned outcome so
// one bad payload cannot take a worker down.
func (m *Manager) invoke(ctx context.Context, h Handler, e *Envelope) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("docpipe: handler for %s panicked on job %s (cid %s): %v",
				e.JobType, e.JobID, e.CorrelationID, r)
			out = Poisonedf(CodeUpstreamError, "handler panic: %v", r)
		}
	}()
	return h.Process(ctx, e)
}

func (m *Manager) deadLetter(ctx context.Context, d *Delivery, out Outcome) {
	e := d.Envelope
	reason := out.Message
	if reason == "" {
		reason = string(out.Code)
	}
	if err := m.queue.DeadLetter(ctx, d, reason); err != nil {
		m.logger.Printf("docpipe: dead-letter %s failed: %v", e.JobID, err)
		return
	}
	m.logger.Printf("docpipe: job %s (%s, cid %s) dead-lettered: %s",
		e.JobID, e.JobType, e.CorrelationID, reason)
	m.testJobDeadLettered() // testing hook
	m.notify(e, out)
}

func (m *Manager) notify(e *Envelope, out Outcome) {
	m.mu.Lock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(e, out)
	}
}

// Stats returns current statistics about the transport, if the queue
// supports reporting them.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	if sr, ok := m.queue.(StatsReporter); ok {
		return sr.Stats(ctx)
	}
	return Stats{}, errors.New("docpipe: queue does not report stats")
}
