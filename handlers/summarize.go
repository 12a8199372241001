// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/docpipe/docpipe"
)

// SummarizePayload is the payload schema for Summarization jobs.
type SummarizePayload struct {
	DriveID string `json:"drive_id"`
	ItemID  string `json:"item_id"`
	Locale  string `json:"locale,omitempty"`
}

// Summarization produces an AI summary for a stored document.
type Summarization struct {
	summarizer Summarizer
	deps       Deps
}

// NewSummarization creates the handler.
func NewSummarization(summarizer Summarizer, deps Deps) *Summarization {
	return &Summarization{summarizer: summarizer, deps: deps}
}

// JobType implements docpipe.Handler.
func (h *Summarization) JobType() string { return docpipe.JobTypeSummarization }

// Process implements docpipe.Handler.
func (h *Summarization) Process(ctx context.Context, e *docpipe.Envelope) docpipe.Outcome {
	log := h.deps.logger().With(
		zap.String("job_id", e.JobID),
		zap.String("correlation_id", e.CorrelationID),
	)
	trackID := e.TrackID()
	tracker := h.deps.tracker()

	var p SummarizePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "malformed summarize payload: %v", err)
		failStatus(ctx, tracker, trackID, out)
		return out
	}
	if p.DriveID == "" || p.ItemID == "" {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "summarize payload needs drive_id and item_id")
		failStatus(ctx, tracker, trackID, out)
		return out
	}

	key := e.IdempotencyKey
	if key == "" {
		key = docpipe.DeriveKey(keyPrefixSummary, p.DriveID, p.ItemID)
	}

	tracker.UpdatePhase(ctx, trackID, phaseSummarize, docpipe.PhaseRunning, "")

	out := h.deps.Guard.Run(ctx, key, func(ctx context.Context) docpipe.Outcome {
		res, err := h.summarizer.Summarize(ctx, SummarizeRequest{
			DriveID:       p.DriveID,
			ItemID:        p.ItemID,
			Locale:        p.Locale,
			CorrelationID: e.CorrelationID,
		})
		if err != nil {
			log.Warn("summarization failed", zap.Error(err))
			return docpipe.FromError(err)
		}
		tracker.Complete(ctx, trackID, p.ItemID, "")
		log.Info("document summarized", zap.Int("summary_len", len(res.Summary)))
		return docpipe.Completed()
	})

	failStatus(ctx, tracker, trackID, out)
	return out
}
