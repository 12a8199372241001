// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"sync"
)

// InMemoryStatusStore is a process-local StatusStore implementation.
type InMemoryStatusStore struct {
	mu   sync.Mutex
	recs map[string]StatusRecord
}

// NewInMemoryStatusStore creates a new InMemoryStatusStore.
func NewInMemoryStatusStore() *InMemoryStatusStore {
	return &InMemoryStatusStore{recs: make(map[string]StatusRecord)}
}

// Put stores the record, last writer wins.
func (st *InMemoryStatusStore) Put(ctx context.Context, rec StatusRecord) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.recs[rec.JobID] = rec
	return nil
}

// Get returns the record for the job id, or ErrNotFound.
func (st *InMemoryStatusStore) Get(ctx context.Context, jobID string) (StatusRecord, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	rec, found := st.recs[jobID]
	if !found {
		return StatusRecord{}, ErrNotFound
	}
	return rec, nil
}
