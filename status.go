// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"sync"
	"time"
)

// Phase statuses a stage can report. These strings are part of the external
// contract (polling and streaming clients see them verbatim).
const (
	PhaseRunning   = "Running"
	PhaseCompleted = "Completed"
	PhaseFailed    = "Failed"
	PhaseSkipped   = "Skipped"
)

// StatusRecord is the per-job progress read model. It is the only thing a
// client ever observes; it never gates handler execution.
type StatusRecord struct {
	JobID         string    `json:"jobId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Phase         string    `json:"phase"`
	Status        string    `json:"status"`
	Progress      int       `json:"progress"`
	ErrorCode     Code      `json:"errorCode,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	Retryable     bool      `json:"retryable,omitempty"`
	DocumentID    string    `json:"documentId,omitempty"`
	DocumentURL   string    `json:"documentUrl,omitempty"`
	Terminal      bool      `json:"terminal"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// StatusStore persists status records, keyed by job id. Implementations
// are single-key, last-writer-wins; no cross-key transactions are needed.
type StatusStore interface {
	Put(ctx context.Context, rec StatusRecord) error
	// Get returns ErrNotFound for unknown job ids.
	Get(ctx context.Context, jobID string) (StatusRecord, error)
}

// Tracker maintains status records and fans updates out to subscribers, so
// the streaming endpoint does not have to re-poll the store.
//
// Every mutator is advisory: a persistence failure is logged and swallowed,
// never surfaced to the handler whose outcome it would otherwise distort.
type Tracker struct {
	store  StatusStore
	logger Logger

	mu   sync.Mutex
	subs map[string]map[chan StatusRecord]struct{}
}

// NewTracker creates a tracker on top of the given store.
func NewTracker(store StatusStore, logger Logger) *Tracker {
	if logger == nil {
		logger = stdLogger{}
	}
	return &Tracker{
		store:  store,
		logger: logger,
		subs:   make(map[string]map[chan StatusRecord]struct{}),
	}
}

// Begin creates the record when a job is first accepted.
func (t *Tracker) Begin(ctx context.Context, jobID, correlationID string) {
	t.put(ctx, StatusRecord{
		JobID:         jobID,
		CorrelationID: correlationID,
		Phase:         "accepted",
		Status:        PhaseRunning,
	})
}

// UpdatePhase overwrites the job's current phase and status. It is
// idempotent: writing the same phase twice is harmless.
func (t *Tracker) UpdatePhase(ctx context.Context, jobID, phase, status, errMsg string) {
	rec, _ := t.load(ctx, jobID)
	rec.JobID = jobID
	rec.Phase = phase
	rec.Status = status
	rec.ErrorMessage = errMsg
	t.put(ctx, rec)
}

// UpdateProgress sets the job's progress percentage, clamped to 0-100.
func (t *Tracker) UpdateProgress(ctx context.Context, jobID string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	rec, _ := t.load(ctx, jobID)
	rec.JobID = jobID
	rec.Progress = percent
	t.put(ctx, rec)
}

// SetDocument records the produced document on a still-running job, so the
// ids survive into later pipeline stages that complete the record.
func (t *Tracker) SetDocument(ctx context.Context, jobID, documentID, documentURL string) {
	rec, _ := t.load(ctx, jobID)
	rec.JobID = jobID
	rec.DocumentID = documentID
	rec.DocumentURL = documentURL
	t.put(ctx, rec)
}

// Complete marks the job terminally succeeded.
func (t *Tracker) Complete(ctx context.Context, jobID, documentID, documentURL string) {
	rec, _ := t.load(ctx, jobID)
	rec.JobID = jobID
	rec.Phase = "completed"
	rec.Status = PhaseCompleted
	rec.Progress = 100
	rec.ErrorCode = ""
	rec.ErrorMessage = ""
	if documentID != "" {
		rec.DocumentID = documentID
	}
	if documentURL != "" {
		rec.DocumentURL = documentURL
	}
	rec.Terminal = true
	t.put(ctx, rec)
}

// Fail records a failure. Non-retryable failures are terminal; retryable
// ones leave the record open for the next delivery attempt.
func (t *Tracker) Fail(ctx context.Context, jobID string, code Code, msg string, retryable bool) {
	rec, _ := t.load(ctx, jobID)
	rec.JobID = jobID
	rec.Status = PhaseFailed
	rec.ErrorCode = code
	rec.ErrorMessage = msg
	rec.Retryable = retryable
	rec.Terminal = !retryable
	t.put(ctx, rec)
}

// MarkSkipped records that a stage was told not to run, preserving the
// distinction from "ran and did nothing observable".
func (t *Tracker) MarkSkipped(ctx context.Context, jobID, phase string) {
	rec, _ := t.load(ctx, jobID)
	rec.JobID = jobID
	rec.Phase = phase
	rec.Status = PhaseSkipped
	t.put(ctx, rec)
}

// Get returns the job's current record, or ErrNotFound.
func (t *Tracker) Get(ctx context.Context, jobID string) (StatusRecord, error) {
	return t.store.Get(ctx, jobID)
}

// Subscribe returns a channel of status updates for the job and a cancel
// function. The channel closes after a terminal record is delivered or when
// cancel is called. Slow subscribers lose intermediate updates rather than
// blocking the writer.
func (t *Tracker) Subscribe(jobID string) (<-chan StatusRecord, func()) {
	ch := make(chan StatusRecord, 16)
	t.mu.Lock()
	if t.subs[jobID] == nil {
		t.subs[jobID] = make(map[chan StatusRecord]struct{})
	}
	t.subs[jobID][ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			if set, found := t.subs[jobID]; found {
				if _, live := set[ch]; live {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(t.subs, jobID)
				}
			}
			t.mu.Unlock()
		})
	}
	return ch, cancel
}

func (t *Tracker) load(ctx context.Context, jobID string) (StatusRecord, bool) {
	rec, err := t.store.Get(ctx, jobID)
	if err != nil {
		return StatusRecord{Status: PhaseRunning}, false
	}
	return rec, true
}

func (t *Tracker) put(ctx context.Context, rec StatusRecord) {
	rec.UpdatedAt = time.Now().UTC()
	if err := t.store.Put(ctx, rec); err != nil {
		// Advisory only; the handler outcome is unaffected.
		t.logger.Printf("docpipe: status update for %s failed: %v", rec.JobID, err)
	}
	t.publish(rec)
}

func (t *Tracker) publish(rec StatusRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, found := t.subs[rec.JobID]
	if !found {
		return
	}
	for ch := range set {
		select {
		case ch <- rec:
		default: // subscriber is slow; drop
		}
		if rec.Terminal {
			delete(set, ch)
			close(ch)
		}
	}
	if rec.Terminal {
		delete(t.subs, rec.JobID)
	}
}
