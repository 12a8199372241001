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

// UploadPayload is the payload schema for UploadFinalization jobs.
type UploadPayload struct {
	DriveID             string `json:"drive_id"`
	ItemID              string `json:"item_id"`
	FileName            string `json:"file_name,omitempty"`
	TriggerAIProcessing bool   `json:"trigger_ai_processing"`
	QueueIndexing       bool   `json:"queue_indexing"`
}

// UploadFinalization finalizes an uploaded file into a stored document and,
// gated by payload flags, chains the profile-extraction or indexing stage.
type UploadFinalization struct {
	store UploadStore
	deps  Deps
}

// NewUploadFinalization creates the handler.
func NewUploadFinalization(store UploadStore, deps Deps) *UploadFinalization {
	return &UploadFinalization{store: store, deps: deps}
}

// JobType implements docpipe.Handler.
func (h *UploadFinalization) JobType() string { return docpipe.JobTypeUploadFinalization }

// Process implements docpipe.Handler.
func (h *UploadFinalization) Process(ctx context.Context, e *docpipe.Envelope) docpipe.Outcome {
	log := h.deps.logger().With(
		zap.String("job_id", e.JobID),
		zap.String("correlation_id", e.CorrelationID),
	)
	trackID := e.TrackID()
	tracker := h.deps.tracker()

	var p UploadPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "malformed upload payload: %v", err)
		failStatus(ctx, tracker, trackID, out)
		return out
	}
	if p.DriveID == "" || p.ItemID == "" {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "upload payload needs drive_id and item_id")
		failStatus(ctx, tracker, trackID, out)
		return out
	}

	key := e.IdempotencyKey
	if key == "" {
		key = docpipe.DeriveKey(keyPrefixUploadFinal, p.DriveID, p.ItemID)
	}

	tracker.UpdatePhase(ctx, trackID, phaseUpload, docpipe.PhaseRunning, "")

	out := h.deps.Guard.Run(ctx, key, func(ctx context.Context) docpipe.Outcome {
		res, err := h.store.Finalize(ctx, FinalizeRequest{
			DriveID:       p.DriveID,
			ItemID:        p.ItemID,
			FileName:      p.FileName,
			UserID:        e.UserID,
			CorrelationID: e.CorrelationID,
		})
		if err != nil {
			log.Warn("upload finalization failed", zap.Error(err))
			return docpipe.FromError(err)
		}
		tracker.SetDocument(ctx, trackID, res.DocumentID, res.DocumentURL)
		tracker.UpdateProgress(ctx, trackID, 40)

		switch {
		case p.TriggerAIProcessing:
			h.deps.Chain.Next(ctx, e, docpipe.JobTypeProfileSummary,
				docpipe.DeriveKey(keyPrefixProfile, p.DriveID, p.ItemID),
				ProfilePayload{DriveID: p.DriveID, ItemID: p.ItemID, QueueIndexing: p.QueueIndexing})
		case p.QueueIndexing:
			tracker.MarkSkipped(ctx, trackID, phaseProfile)
			h.deps.Chain.Next(ctx, e, docpipe.JobTypeRagIndexing,
				docpipe.DeriveKey(keyPrefixRagIndex, p.DriveID, p.ItemID),
				IndexPayload{DriveID: p.DriveID, ItemID: p.ItemID})
		default:
			tracker.MarkSkipped(ctx, trackID, phaseProfile)
			tracker.MarkSkipped(ctx, trackID, phaseRagIndexing)
			tracker.Complete(ctx, trackID, res.DocumentID, res.DocumentURL)
		}
		log.Info("upload finalized",
			zap.String("document_id", res.DocumentID),
			zap.Bool("ai", p.TriggerAIProcessing),
			zap.Bool("indexing", p.QueueIndexing))
		return docpipe.Completed()
	})

	failStatus(ctx, tracker, trackID, out)
	return out
}
