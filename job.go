// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job types known to the pipeline. The dispatcher selects a handler by
// this tag, so producers and handlers must agree on the exact string.
const (
	JobTypeProcessEmailToDocument = "ProcessEmailToDocument"
	JobTypeSummarization          = "Summarization"
	JobTypeRagIndexing            = "RagIndexing"
	JobTypeUploadFinalization     = "UploadFinalization"
	JobTypeProfileSummary         = "ProfileSummary"
)

// DefaultMaxAttempts is the number of deliveries a job gets before the
// transport dead-letters it.
const DefaultMaxAttempts = 5

// Envelope is the immutable contract carried by every queue message.
//
// Attempt is 1-based and counts deliveries, not executions: the transport
// is at-least-once, so Attempt == 1 does not mean "first ever delivery".
// The idempotency key is the only trustworthy duplicate signal.
type Envelope struct {
	JobID          string          `json:"job_id"`
	JobType        string          `json:"job_type"`
	SubjectID      string          `json:"subject_id"`
	UserID         string          `json:"user_id,omitempty"`
	BatchID        string          `json:"batch_id,omitempty"`
	CorrelationID  string          `json:"correlation_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"max_attempts"`
	CreatedAt      time.Time       `json:"created_at"`
	Payload        json.RawMessage `json:"payload,omitempty"`

	// TrackingID names the status record this envelope reports into. The
	// entry gate's job id is carried down the pipeline so every stage
	// mutates the one record the client is watching. Empty means JobID.
	TrackingID string `json:"tracking_id,omitempty"`
}

// NewEnvelope creates an envelope for the given job type and subject.
// A fresh job id and correlation id are assigned; callers that continue an
// existing causal chain should overwrite CorrelationID before enqueueing.
func NewEnvelope(jobType, subjectID string) *Envelope {
	return &Envelope{
		JobID:         uuid.NewString(),
		JobType:       jobType,
		SubjectID:     subjectID,
		CorrelationID: uuid.NewString(),
		Attempt:       1,
		MaxAttempts:   DefaultMaxAttempts,
		CreatedAt:     time.Now().UTC(),
	}
}

// NextStage derives the envelope for the following pipeline stage. The
// correlation id, user id, and batch id carry over so the causal chain stays
// traceable; the job id and idempotency key are fresh, so re-running the
// upstream stage cannot corrupt the downstream stage's dedup.
func (e *Envelope) NextStage(jobType, idempotencyKey string, payload json.RawMessage) *Envelope {
	return &Envelope{
		JobID:          uuid.NewString(),
		JobType:        jobType,
		SubjectID:      e.SubjectID,
		UserID:         e.UserID,
		BatchID:        e.BatchID,
		CorrelationID:  e.CorrelationID,
		IdempotencyKey: idempotencyKey,
		Attempt:        1,
		MaxAttempts:    DefaultMaxAttempts,
		CreatedAt:      time.Now().UTC(),
		Payload:        payload,
		TrackingID:     e.TrackID(),
	}
}

// TrackID returns the id of the status record this envelope reports into.
func (e *Envelope) TrackID() string {
	if e.TrackingID != "" {
		return e.TrackingID
	}
	return e.JobID
}

// DeriveKey builds a deterministic idempotency key from a stage prefix and
// the identifiers of the unit of work. The same inputs always yield the same
// key, so every redelivery of the same logical work maps to one key.
func DeriveKey(prefix string, parts ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteString("-")
		b.WriteString(p)
	}
	return b.String()
}

// Key returns the envelope's idempotency key, deriving a deterministic
// fallback from the job type and subject when the producer did not set one.
func (e *Envelope) Key() string {
	if e.IdempotencyKey != "" {
		return e.IdempotencyKey
	}
	return DeriveKey(strings.ToLower(e.JobType), e.SubjectID)
}

// Validate reports structural problems that can never heal on retry.
func (e *Envelope) Validate() error {
	if e.JobType == "" {
		return fmt.Errorf("docpipe: envelope %s has no job type", e.JobID)
	}
	if e.SubjectID == "" {
		return fmt.Errorf("docpipe: envelope %s has no subject", e.JobID)
	}
	return nil
}

// EncodeEnvelope serializes an envelope into the JSON wire format.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses the JSON wire format back into an envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("docpipe: decode envelope: %w", err)
	}
	return &e, nil
}
