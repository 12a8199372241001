// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/docpipe/docpipe"
	"github.com/docpipe/docpipe/handlers"
)

const maxBatchItems = 500

// Subject is one business entity returned by the upstream system.
type Subject struct {
	ID        string
	DriveID   string
	ItemID    string
	CreatedAt time.Time
}

// SubjectSource is the upstream system the batch gate queries for subjects
// within a date range. Implementations must bound their page size.
type SubjectSource interface {
	List(ctx context.Context, start, end time.Time, max int) ([]Subject, error)
}

type batchRequest struct {
	StartDate           time.Time `json:"startDate"`
	EndDate             time.Time `json:"endDate"`
	MaxItems            int       `json:"maxItems"`
	TriggerAIProcessing bool      `json:"triggerAiProcessing"`
	QueueIndexing       bool      `json:"queueIndexing"`
}

// BatchStatus aggregates sub-job completion for one batch.
type BatchStatus struct {
	JobID           string `json:"jobId"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progressPercent"`
	TotalCount      int    `json:"totalCount"`
	ProcessedCount  int    `json:"processedCount"`
	ErrorCount      int    `json:"errorCount"`
	SkippedCount    int    `json:"skippedCount"`
}

// BatchTracker keeps per-batch counters. Sub-jobs report in through the
// manager's terminal-settlement observer, keyed by the envelope's BatchID.
type BatchTracker struct {
	mu      sync.Mutex
	batches map[string]*BatchStatus
}

// NewBatchTracker creates an empty tracker.
func NewBatchTracker() *BatchTracker {
	return &BatchTracker{batches: make(map[string]*BatchStatus)}
}

// Start registers a batch with its total subject count. A batch with no
// subjects settles immediately; there is nothing left to report in.
func (bt *BatchTracker) Start(jobID string, total int) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	b := &BatchStatus{JobID: jobID, Status: docpipe.PhaseRunning, TotalCount: total}
	bt.batches[jobID] = b
	bt.refresh(b)
}

// Skip counts a subject that was never enqueued.
func (bt *BatchTracker) Skip(jobID string) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	if b, found := bt.batches[jobID]; found {
		b.SkippedCount++
		bt.refresh(b)
	}
}

// Get returns a copy of the batch status.
func (bt *BatchTracker) Get(jobID string) (BatchStatus, bool) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	b, found := bt.batches[jobID]
	if !found {
		return BatchStatus{}, false
	}
	return *b, true
}

// Observer returns the manager observer that feeds the counters.
func (bt *BatchTracker) Observer() docpipe.Observer {
	return func(e *docpipe.Envelope, out docpipe.Outcome) {
		if e.BatchID == "" {
			return
		}
		bt.mu.Lock()
		defer bt.mu.Unlock()
		b, found := bt.batches[e.BatchID]
		if !found {
			return
		}
		if out.Status == docpipe.StatusCompleted {
			b.ProcessedCount++
		} else {
			b.ErrorCount++
		}
		bt.refresh(b)
	}
}

// refresh recomputes derived fields. Callers hold the mutex.
func (bt *BatchTracker) refresh(b *BatchStatus) {
	settled := b.ProcessedCount + b.ErrorCount + b.SkippedCount
	if b.TotalCount > 0 {
		b.ProgressPercent = settled * 100 / b.TotalCount
	}
	if settled >= b.TotalCount {
		b.Status = docpipe.PhaseCompleted
		b.ProgressPercent = 100
	}
}

// handleBatch queries the upstream system for subjects in the date range
// and enqueues one envelope per subject under the concurrency ceiling.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if s.subjects == nil {
		writeError(w, http.StatusServiceUnavailable, docpipe.CodeUnavailable, "no subject source configured", "")
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, docpipe.CodeInvalidInput, "malformed request", "")
		return
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() || !req.EndDate.After(req.StartDate) {
		writeError(w, http.StatusBadRequest, docpipe.CodeInvalidInput, "startDate must precede endDate", "")
		return
	}
	if req.MaxItems <= 0 || req.MaxItems > maxBatchItems {
		req.MaxItems = maxBatchItems
	}

	subjects, err := s.subjects.List(r.Context(), req.StartDate, req.EndDate, req.MaxItems)
	if err != nil {
		writeError(w, http.StatusBadGateway, docpipe.CodeUpstreamError, "subject query failed", "")
		return
	}

	batchID := uuid.NewString()
	s.batches.Start(batchID, len(subjects))
	go s.enqueueBatch(batchID, subjects, req)

	writeJSON(w, http.StatusAccepted, struct {
		JobID string `json:"jobId"`
	}{JobID: batchID})
}

// enqueueBatch fans the subjects out into envelopes. It runs detached from
// the request so the gate can return immediately.
func (s *Server) enqueueBatch(batchID string, subjects []Subject, req batchRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sem := semaphore.NewWeighted(s.ceiling)
	var wg sync.WaitGroup
	for _, subj := range subjects {
		if subj.DriveID == "" || subj.ItemID == "" {
			s.batches.Skip(batchID)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			s.batches.Skip(batchID)
			continue
		}
		wg.Add(1)
		go func(subj Subject) {
			defer sem.Release(1)
			defer wg.Done()
			e := docpipe.NewEnvelope(docpipe.JobTypeUploadFinalization, subj.ID)
			e.BatchID = batchID
			e.IdempotencyKey = docpipe.DeriveKey("upload-final", subj.DriveID, subj.ItemID)
			payload, _ := json.Marshal(handlers.UploadPayload{
				DriveID:             subj.DriveID,
				ItemID:              subj.ItemID,
				TriggerAIProcessing: req.TriggerAIProcessing,
				QueueIndexing:       req.QueueIndexing,
			})
			e.Payload = payload
			if err := s.manager.Enqueue(ctx, e); err != nil {
				s.log.Warn("batch enqueue failed",
					zap.String("batch_id", batchID),
					zap.String("subject_id", subj.ID),
					zap.Error(err))
				s.batches.Skip(batchID)
			}
		}(subj)
	}
	wg.Wait()
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	status, found := s.batches.Get(jobID)
	if !found {
		writeError(w, http.StatusNotFound, docpipe.CodeNotFound, "batch not found", "")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
