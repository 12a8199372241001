// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	r "github.com/redis/go-redis/v9"

	"github.com/docpipe/docpipe"
)

// StatusStore implements docpipe.StatusStore on Redis. Records expire with
// the processed-marker window, so a client can poll a job for as long as a
// duplicate delivery could still arrive.
type StatusStore struct {
	rdb    *r.Client
	prefix string
	ttl    time.Duration
}

// NewStatusStore creates a status store with the default retention.
func NewStatusStore(rdb *r.Client, prefix string) *StatusStore {
	if prefix == "" {
		prefix = "docpipe"
	}
	return &StatusStore{rdb: rdb, prefix: prefix, ttl: docpipe.DefaultProcessedTTL}
}

func (st *StatusStore) key(jobID string) string { return st.prefix + ":status:" + jobID }

// Put implements docpipe.StatusStore.
func (st *StatusStore) Put(ctx context.Context, rec docpipe.StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return st.rdb.Set(ctx, st.key(rec.JobID), data, st.ttl).Err()
}

// Get implements docpipe.StatusStore.
func (st *StatusStore) Get(ctx context.Context, jobID string) (docpipe.StatusRecord, error) {
	var rec docpipe.StatusRecord
	data, err := st.rdb.Get(ctx, st.key(jobID)).Bytes()
	if errors.Is(err, r.Nil) {
		return rec, docpipe.ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}
