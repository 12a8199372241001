// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler processes envelopes of a single job type.
//
// Process must never panic past its own boundary and must never leave the
// idempotency lock held on any return path. Structural payload problems are
// poisoned before any lock is taken; downstream failures are classified into
// Failed or Poisoned (see Classify).
type Handler interface {
	// JobType is the dispatch tag this handler is registered under.
	JobType() string

	// Process runs one delivery attempt. ctx carries the delivery's lease
	// deadline; long-running work should honor it and let the message
	// redeliver instead of outliving the lease.
	Process(ctx context.Context, e *Envelope) Outcome
}

// Dispatcher maps a job-type tag to its handler.
type Dispatcher struct {
	mu sync.RWMutex
	hs map[string]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{hs: make(map[string]Handler)}
}

// Register adds a handler. Registering the same job type twice is an error.
func (d *Dispatcher) Register(h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	jt := h.JobType()
	if jt == "" {
		return fmt.Errorf("docpipe: handler %T has no job type", h)
	}
	if _, found := d.hs[jt]; found {
		return fmt.Errorf("docpipe: job type %s already registered", jt)
	}
	d.hs[jt] = h
	return nil
}

// Lookup returns the handler for the job type, if any.
func (d *Dispatcher) Lookup(jobType string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, found := d.hs[jobType]
	return h, found
}

// JobTypes lists the registered job types, sorted.
func (d *Dispatcher) JobTypes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	types := make([]string, 0, len(d.hs))
	for jt := range d.hs {
		types = append(types, jt)
	}
	sort.Strings(types)
	return types
}
