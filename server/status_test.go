// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe"
)

func TestJobStatusNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs/nope", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobStatusPolling(t *testing.T) {
	s, _, tracker := newTestServer(t)
	ctx := context.Background()
	tracker.Begin(ctx, "job-1", "cid-1")
	tracker.UpdateProgress(ctx, "job-1", 40)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var rec docpipe.StatusRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "job-1", rec.JobID)
	assert.Equal(t, "cid-1", rec.CorrelationID)
	assert.Equal(t, 40, rec.Progress)
	assert.False(t, rec.Terminal)
}

func TestJobStreamEndsOnTerminalRecord(t *testing.T) {
	s, _, tracker := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx := context.Background()
	tracker.Begin(ctx, "job-1", "cid-1")

	go func() {
		time.Sleep(100 * time.Millisecond)
		tracker.UpdateProgress(ctx, "job-1", 50)
		tracker.Complete(ctx, "job-1", "doc-1", "")
	}()

	resp, err := http.Get(srv.URL + "/jobs/job-1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The handler returns after the terminal event, so the body drains.
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	events := string(body)
	assert.True(t, strings.HasPrefix(events, "event: status\n"), "body: %q", events)
	assert.Contains(t, events, `"terminal":true`)
	assert.Contains(t, events, `"documentId":"doc-1"`)
}

// gatedStatusStore blocks the first Get until released, so a test can slot
// a tracker update between the stream's Subscribe and its snapshot read.
type gatedStatusStore struct {
	inner    docpipe.StatusStore
	mu       sync.Mutex
	armed    bool
	entered  chan struct{}
	released chan struct{}
}

func (s *gatedStatusStore) Put(ctx context.Context, rec docpipe.StatusRecord) error {
	return s.inner.Put(ctx, rec)
}

func (s *gatedStatusStore) Get(ctx context.Context, jobID string) (docpipe.StatusRecord, error) {
	s.mu.Lock()
	armed := s.armed
	s.armed = false
	s.mu.Unlock()
	if armed {
		close(s.entered)
		<-s.released
	}
	return s.inner.Get(ctx, jobID)
}

func TestJobStreamDoesNotDuplicateSnapshotUpdate(t *testing.T) {
	store := &gatedStatusStore{
		inner:    docpipe.NewInMemoryStatusStore(),
		entered:  make(chan struct{}),
		released: make(chan struct{}),
	}
	tracker := docpipe.NewTracker(store, nil)
	s := New(docpipe.New(), tracker, SetWebhookSecret(testSecret))
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx := context.Background()
	tracker.Begin(ctx, "job-1", "cid-1")
	store.mu.Lock()
	store.armed = true
	store.mu.Unlock()

	type result struct {
		body string
		err  error
	}
	resc := make(chan result, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/jobs/job-1/stream")
		if err != nil {
			resc <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		resc <- result{body: string(body), err: err}
	}()

	// The handler has subscribed and now sits in the snapshot read; this
	// update lands both in the snapshot and on the subscription channel.
	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("stream handler never reached the snapshot read")
	}
	tracker.UpdateProgress(ctx, "job-1", 50)
	close(store.released)
	tracker.Complete(ctx, "job-1", "", "")

	var res result
	select {
	case res = <-resc:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish in time")
	}
	require.NoError(t, res.err)
	assert.Equal(t, 1, strings.Count(res.body, `"progress":50,`), "body: %q", res.body)
	assert.Contains(t, res.body, `"terminal":true`)
}

func TestJobStreamNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs/nope/stream", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats docpipe.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Zero(t, stats.Working)
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
