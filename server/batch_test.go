// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe"
)

type fakeSubjectSource struct {
	subjects []Subject
	err      error
}

func (src fakeSubjectSource) List(ctx context.Context, start, end time.Time, max int) ([]Subject, error) {
	if src.err != nil {
		return nil, src.err
	}
	if len(src.subjects) > max {
		return src.subjects[:max], nil
	}
	return src.subjects, nil
}

func TestBatchValidation(t *testing.T) {
	s, _, _ := newTestServer(t, SetSubjectSource(fakeSubjectSource{}))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/batch-process", strings.NewReader(body))
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		return w
	}

	w := post(`{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(`{"startDate":"2026-08-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// endDate before startDate
	w = post(`{"startDate":"2026-08-20T00:00:00Z","endDate":"2026-08-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchWithoutSubjectSource(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/batch-process",
		strings.NewReader(`{"startDate":"2026-08-01T00:00:00Z","endDate":"2026-08-20T00:00:00Z"}`))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBatchStatusNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/batch-process/nope/status", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchProcessing(t *testing.T) {
	src := fakeSubjectSource{subjects: []Subject{
		{ID: "s1", DriveID: "d1", ItemID: "i1"},
		{ID: "s2", DriveID: "d1", ItemID: "i2"},
		{ID: "s3"}, // no drive item yet; counted as skipped
	}}
	s, m, _ := newTestServer(t, SetSubjectSource(src))
	require.NoError(t, m.Start())
	defer m.Close()

	req := httptest.NewRequest(http.MethodPost, "/admin/batch-process",
		strings.NewReader(`{"startDate":"2026-08-01T00:00:00Z","endDate":"2026-08-20T00:00:00Z","queueIndexing":true}`))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)

	var status BatchStatus
	deadline := time.Now().Add(5 * time.Second)
	for {
		var found bool
		status, found = s.batches.Get(resp.JobID)
		if found && status.Status == docpipe.PhaseCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch did not settle in time: %+v", status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	assert.Equal(t, 3, status.TotalCount)
	assert.Equal(t, 2, status.ProcessedCount)
	assert.Equal(t, 1, status.SkippedCount)
	assert.Equal(t, 0, status.ErrorCount)
	assert.Equal(t, 100, status.ProgressPercent)
}

func TestBatchWithNoSubjects(t *testing.T) {
	s, _, _ := newTestServer(t, SetSubjectSource(fakeSubjectSource{}))

	req := httptest.NewRequest(http.MethodPost, "/admin/batch-process",
		strings.NewReader(`{"startDate":"2026-08-01T00:00:00Z","endDate":"2026-08-20T00:00:00Z"}`))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// Nothing will ever report in, so the batch must already be settled.
	status, found := s.batches.Get(resp.JobID)
	require.True(t, found)
	assert.Equal(t, docpipe.PhaseCompleted, status.Status)
	assert.Equal(t, 100, status.ProgressPercent)
	assert.Equal(t, 0, status.TotalCount)
	assert.Equal(t, 0, status.ProcessedCount)
}

func TestBatchTrackerEmptyBatchSettles(t *testing.T) {
	bt := NewBatchTracker()
	bt.Start("b0", 0)
	status, found := bt.Get("b0")
	require.True(t, found)
	assert.Equal(t, docpipe.PhaseCompleted, status.Status)
	assert.Equal(t, 100, status.ProgressPercent)
}

func TestBatchTrackerCountsErrors(t *testing.T) {
	bt := NewBatchTracker()
	bt.Start("b1", 2)
	obs := bt.Observer()

	obs(&docpipe.Envelope{BatchID: "b1"}, docpipe.Completed())
	status, found := bt.Get("b1")
	require.True(t, found)
	assert.Equal(t, 50, status.ProgressPercent)
	assert.Equal(t, docpipe.PhaseRunning, status.Status)

	obs(&docpipe.Envelope{BatchID: "b1"}, docpipe.Poisonedf(docpipe.CodeInvalidInput, "bad payload"))
	status, _ = bt.Get("b1")
	assert.Equal(t, 1, status.ProcessedCount)
	assert.Equal(t, 1, status.ErrorCount)
	assert.Equal(t, docpipe.PhaseCompleted, status.Status)

	// Settlements for unknown or batchless envelopes are ignored.
	obs(&docpipe.Envelope{BatchID: "zzz"}, docpipe.Completed())
	obs(&docpipe.Envelope{}, docpipe.Completed())
}
